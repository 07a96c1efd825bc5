package models

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string `json:"status"`            // status of the API response
	Message string `json:"message,omitempty"` // optional message for error responses or additional info
	Result  any    `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result any) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result any) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// SetTimerResult is the response payload of the set_timer operation.
type SetTimerResult struct {
	TimerID  string      `json:"timer_id"`
	Timer    TimerRecord `json:"timer"`
	Response string      `json:"response"`
}

// SnoozeTimerResult is the response payload of the snooze_timer operation.
type SnoozeTimerResult struct {
	TimerID string      `json:"timer_id"`
	Timer   TimerRecord `json:"timer"`
}

// CancelTimerResult is the response payload of the cancel_timer operation.
// Result is false (not an error) when the selection matched nothing.
type CancelTimerResult struct {
	Result bool `json:"result"`
}
