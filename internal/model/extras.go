package model

// ExpenseItem is one line item read off a receipt or invoice.
type ExpenseItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Total       float64 `json:"total"`
}

// ExpenseData is what the expense scanner extracted from one document.
type ExpenseData struct {
	FileName    string        `json:"fileName"`
	Vendor      string        `json:"vendor"`
	Date        string        `json:"date"`
	Category    string        `json:"category"`
	Items       []ExpenseItem `json:"items"`
	Subtotal    *float64      `json:"subtotal"`
	Tax         *float64      `json:"tax"`
	TotalAmount *float64      `json:"totalAmount"`
}

// FileError attributes a failure to one uploaded file.
type FileError struct {
	FileName string `json:"fileName"`
	Error    string `json:"error"`
}

// ExpenseScan is the response of the expense scanner.
type ExpenseScan struct {
	ExtractedDataList []ExpenseData `json:"extractedDataList"`
	Errors            []FileError   `json:"errors"`
}

// Severity of an inspection finding.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// Location places an issue on a photo; X and Y are percentages of the image
// width and height.
type Location struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Description string  `json:"description,omitempty"`
}

// InspectionIssue is one finding on a photo.
type InspectionIssue struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Severity Severity `json:"severity"`
	Location Location `json:"location"`
}

// PhotoInspection groups the findings for one photo.
type PhotoInspection struct {
	FileName string            `json:"fileName"`
	ImageURL string            `json:"imageUrl,omitempty"`
	Issues   []InspectionIssue `json:"issues"`
}

// RepairLineItem is the estimated cost of fixing one issue.
type RepairLineItem struct {
	IssueID       string  `json:"issueId"`
	Task          string  `json:"task"`
	EstimatedCost float64 `json:"estimatedCost"`
}

// RepairEstimate totals the repair work for an inspection.
type RepairEstimate struct {
	LineItems          []RepairLineItem `json:"lineItems"`
	TotalEstimatedCost float64          `json:"totalEstimatedCost"`
	Notes              string           `json:"notes,omitempty"`
}

// InspectionReport is the response of the photo inspection endpoint.
type InspectionReport struct {
	Success        bool              `json:"success"`
	Results        []PhotoInspection `json:"results"`
	RepairEstimate *RepairEstimate   `json:"repairEstimate"`
}

// ChatReply is the assistant's answer.
type ChatReply struct {
	Response string `json:"response"`
	Model    string `json:"model,omitempty"`
}

// TenantPreferences steer the agent's tenant screening.
type TenantPreferences struct {
	PetFriendly    bool   `json:"petFriendly"`
	SmokingAllowed bool   `json:"smokingAllowed"`
	IncomeRange    [2]int `json:"incomeRange"`
	Notes          string `json:"notes"`
}

// DefaultTenantPreferences are the values the agent form starts with.
func DefaultTenantPreferences() TenantPreferences {
	return TenantPreferences{IncomeRange: [2]int{30000, 80000}}
}

// AgentReport is the agent tool's summary of the uploaded documents.
type AgentReport struct {
	Success       bool   `json:"success"`
	ExtractedInfo string `json:"extractedInfo"`
}

// ImageAnalysis is the response of the image analysis endpoint.
type ImageAnalysis struct {
	Result   string `json:"result"`
	FileName string `json:"filename"`
}

// Upload is one file sent to a multi-file endpoint.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}
