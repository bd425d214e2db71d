package shared

// HostCredentials holds the credentials for a source-control host.
type HostCredentials struct {
	Provider string
	Repo     string
	Token    string
	BaseURL  string
}
