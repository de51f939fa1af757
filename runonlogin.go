package cas

// RunOnLogin provides an interface for running a function post login.
type RunOnLogin interface {
	// Run receives the authenticated user's login name.
	Run(user string) error
}
