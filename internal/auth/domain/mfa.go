package domain

// MFAEnrollment is returned by the enroll endpoint. The same values come
// back on repeated calls for the same user: enrollment never rotates an
// existing secret.
type MFAEnrollment struct {
	Secret string // base32 encoded TOTP secret
	OTPURI string // otpauth:// provisioning URI
	QRCode string // data:image/png;base64 rendering of the URI
}
