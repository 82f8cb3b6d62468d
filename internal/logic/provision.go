package logic

// ProvisionState is a step of the Wi-Fi provisioning flow.
type ProvisionState string

const (
	ProvisionUnconfigured        ProvisionState = "Unconfigured"
	ProvisionAccessPointActive   ProvisionState = "AccessPointActive"
	ProvisionCredentialsReceived ProvisionState = "CredentialsReceived"
	ProvisionStationConnecting   ProvisionState = "StationConnecting"
	ProvisionStationConnected    ProvisionState = "StationConnected"
	ProvisionStationFailed       ProvisionState = "StationFailed"
)

// provisionTransitions lists the allowed next states for each state.
// Unconfigured may jump straight to CredentialsReceived when station
// credentials are pre-configured.
var provisionTransitions = map[ProvisionState][]ProvisionState{
	ProvisionUnconfigured:        {ProvisionAccessPointActive, ProvisionCredentialsReceived},
	ProvisionAccessPointActive:   {ProvisionCredentialsReceived},
	ProvisionCredentialsReceived: {ProvisionStationConnecting},
	ProvisionStationConnecting:   {ProvisionStationConnected, ProvisionStationFailed},
	ProvisionStationFailed:       {ProvisionAccessPointActive},
	ProvisionStationConnected:    nil,
}

// CanTransition reports whether from -> to is a legal provisioning step.
func CanTransition(from, to ProvisionState) bool {
	for _, next := range provisionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AcceptsCredentials reports whether new credentials may be submitted in s.
func (s ProvisionState) AcceptsCredentials() bool {
	return s == ProvisionAccessPointActive
}

// ValidateCredentials checks station credentials from the configuration form.
// An empty password selects an open network; otherwise WPA2 length limits apply.
func ValidateCredentials(c Credentials) error {
	if c.SSID == "" {
		return &ValidationError{Field: "ssid", Reason: "must not be empty"}
	}
	if len(c.SSID) > 32 {
		return &ValidationError{Field: "ssid", Value: c.SSID, Reason: "longer than 32 bytes"}
	}
	if n := len(c.Password); n != 0 && (n < 8 || n > 63) {
		return &ValidationError{Field: "password", Reason: "must be 8 to 63 characters"}
	}
	return nil
}
