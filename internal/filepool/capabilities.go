package filepool

// SiteProvider answers site-level questions the pool cannot decide on its
// own: whether a site permits downloads at all, and how to rewrite file URLs
// into their canonical authenticated form.
//
//go:generate mockgen -source=capabilities.go -destination=mocks/mock_capabilities.go -package=mocks
type SiteProvider interface {
	CanDownloadFiles(siteID string) bool
	FixPluginfileURL(siteID, fileURL string) (string, error)
}

// Connectivity reports network state. LimitedConnection distinguishes
// metered links, which lower the automatic-download size threshold.
type Connectivity interface {
	Online() bool
	LimitedConnection() bool
}

// QueueScheduler re-arms the download queue. Satisfied by queue.Processor.
type QueueScheduler interface {
	CheckProcessing()
}

// PermissiveSites allows downloads for every site and leaves URLs untouched.
// Useful for deployments without a site registry.
type PermissiveSites struct{}

func (PermissiveSites) CanDownloadFiles(string) bool { return true }

func (PermissiveSites) FixPluginfileURL(_, fileURL string) (string, error) {
	return fileURL, nil
}

// AlwaysOnline reports a permanently available, unmetered connection.
type AlwaysOnline struct{}

func (AlwaysOnline) Online() bool            { return true }
func (AlwaysOnline) LimitedConnection() bool { return false }
