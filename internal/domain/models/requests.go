package models

// Request models for the HTTP API. Bound by echo, defaulted by
// creasty/defaults and checked by validator.

type ScanRequest struct {
	Interval             string  `query:"interval" json:"interval" default:"4h" validate:"required"`
	MinBodyRatio         float64 `query:"minBodyRatio" json:"minBodyRatio" default:"0.15" validate:"gte=0,lte=1"`
	MinPriceChange       float64 `query:"minPriceChange" json:"minPriceChange" default:"0.0002" validate:"gte=0"`
	VolumeFactor         float64 `query:"volumeFactor" json:"volumeFactor" default:"0.5" validate:"gte=0"`
	RequireBOS           bool    `query:"requireBOS" json:"requireBOS" default:"true"`
	RequireC3ClosePastC2 bool    `query:"requireC3ClosePastC2" json:"requireC3ClosePastC2" default:"true"`
	RequireFVG           bool    `query:"requireFVG" json:"requireFVG" default:"true"`
	RequireUnmitigated   bool    `query:"requireUnmitigated" json:"requireUnmitigated" default:"true"`
	MinFvgDepthRatio     float64 `query:"minFvgDepthRatio" json:"minFvgDepthRatio" default:"0" validate:"gte=0"`
}

type HistoryRequest struct {
	Symbol string `param:"symbol" validate:"required"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=5000"`
}

type ResultsRequest struct {
	Zone string `query:"zone" json:"zone" validate:"omitempty,oneof=BullishOB BearishOB None"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Plan     string `json:"plan" default:"trial" validate:"oneof=trial premium none"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TrialRequest struct {
	Username string `param:"username" validate:"required"`
	Days     int    `query:"days" json:"days" default:"3" validate:"gte=1,lte=365"`
}

type AuthResponse struct {
	Token     string   `json:"token"`
	Username  string   `json:"username"`
	Roles     []string `json:"roles"`
	ExpiresAt int64    `json:"expiresAt"`
}
