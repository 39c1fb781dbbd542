package domain

// MFAState is the position of an account in the TOTP setup state machine.
type MFAState string

const (
	MFAStateUnset        MFAState = "unset"
	MFAStatePendingSetup MFAState = "pending_setup"
	MFAStateEnabled      MFAState = "enabled"
)

// MFAStateOf derives the state from the account's MFA fields.
func MFAStateOf(a *Account) MFAState {
	switch {
	case a.MFAEnabled:
		return MFAStateEnabled
	case a.MFASecret != nil:
		return MFAStatePendingSetup
	default:
		return MFAStateUnset
	}
}

// MFASetup contains data returned when initiating MFA setup.
type MFASetup struct {
	Secret          string // Base32 TOTP secret (for manual entry)
	ProvisioningURI string // otpauth:// URI
	QRCodeDataURI   string // QR code as data:image/png;base64,...
}

// MFAStatus reports whether MFA is enabled or waiting for confirmation.
type MFAStatus struct {
	Enabled bool `json:"enabled"`
	Pending bool `json:"pending"`
}
