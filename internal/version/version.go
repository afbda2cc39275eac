// Package version хранит сведения о сборке, подставляемые через -ldflags.
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build — сведения о сборке.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Current возвращает сведения о текущей сборке.
func Current() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

// Short возвращает версию для заголовков и health-ответов.
func Short() string {
	if commit == "unknown" || commit == "" {
		return version
	}
	short := commit
	if len(short) > 7 {
		short = short[:7]
	}
	return version + "+" + short
}

func (b Build) String() string {
	return fmt.Sprintf("crowngate version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}
