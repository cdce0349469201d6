package model

import "time"

// InputKind says how an analysis task carries its payload.
type InputKind string

const (
	InputText InputKind = "text"
	InputFile InputKind = "file"
)

// AnalysisTask is one unit of work for the analysis API. It lives only for
// the duration of a request or a batch run.
type AnalysisTask struct {
	Kind        InputKind `json:"inputKind"`
	Text        string    `json:"-"`
	Data        []byte    `json:"-"`
	FileName    string    `json:"fileName,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
}

// TextTask builds a pasted-text task.
func TextTask(text string) AnalysisTask {
	return AnalysisTask{Kind: InputText, Text: text}
}

// FileTask builds an uploaded-document task.
func FileTask(fileName, contentType string, data []byte) AnalysisTask {
	return AnalysisTask{Kind: InputFile, FileName: fileName, ContentType: contentType, Data: data}
}

// AnalysisResult is the normalized outcome of one analysis call.
//
// ExtractedData and ClauseSummaries values are nullable: the backend sends
// null for fields it could not find. ErrorMessage and RawAnalysis are only
// set when the backend could not structure its output and fell back to raw
// text.
type AnalysisResult struct {
	Success         bool               `json:"success"`
	ExtractedData   map[string]*string `json:"extracted_data"`
	ClauseSummaries map[string]*string `json:"clause_summaries"`
	Risks           []string           `json:"risks"`
	Score           int                `json:"score"`
	SavedID         string             `json:"savedId,omitempty"`
	Error           string             `json:"error,omitempty"`
	UpgradeRequired bool               `json:"upgradeRequired,omitempty"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	RawAnalysis     string             `json:"raw_analysis,omitempty"`
	FileName        string             `json:"fileName,omitempty"`
}

// RowStatus is the per-item status inside a batch.
type RowStatus string

const (
	RowPending  RowStatus = "Pending"
	RowComplete RowStatus = "Complete"
	RowError    RowStatus = "Error"
)

// MultiAnalysisRow is one line of a batch result table.
type MultiAnalysisRow struct {
	FileName string          `json:"fileName"`
	Status   RowStatus       `json:"status"`
	Result   *AnalysisResult `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// SavedAnalysis is an analysis result persisted for later retrieval by id.
type SavedAnalysis struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	FileName  string         `json:"fileName"`
	Result    AnalysisResult `json:"result"`
	CreatedAt time.Time      `json:"createdAt"`
}
