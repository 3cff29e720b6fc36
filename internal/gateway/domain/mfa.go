package domain

// TOTPEnrollment is returned when a user starts enrolling an authenticator.
type TOTPEnrollment struct {
	Secret string `json:"secret"`
	URI    string `json:"otpauth_uri"`
}
