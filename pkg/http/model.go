package http

// APIResponse is the uniform envelope every endpoint answers with.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError is one request-validation failure inside a 400 envelope.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"provider"`
	Message string                 `json:"message,omitempty" example:"Provider is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}
