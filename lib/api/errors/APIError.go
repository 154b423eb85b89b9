package errors

// Error is the JSON body returned for every failed request.
// @Description Standardized API error response
type Error struct {
	Message string `json:"message" example:"Version not found"`
	Code    string `json:"code,omitempty" example:"VERSION_NOT_FOUND"`
	Error   int    `json:"error" example:"404"`
}
