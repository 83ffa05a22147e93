package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// SessionChanged is true when any session default changed. New
	// connections pick up the new defaults; live sessions keep theirs.
	SessionChanged bool

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists changed sections, or single fields, that are
	// only read at startup.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// The transcription timeout is handed to the session controller once.
	oldSession, newSession := old.Session, new.Session
	oldSession.TranscribeTimeout, newSession.TranscribeTimeout = 0, 0
	d.SessionChanged = !reflect.DeepEqual(oldSession, newSession)
	if old.Session.TranscribeTimeout != new.Session.TranscribeTimeout {
		d.RestartRequired = append(d.RestartRequired, "session.transcribe_timeout")
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Journal != new.Journal {
		d.RestartRequired = append(d.RestartRequired, "journal")
	}
	if old.Observe != new.Observe {
		d.RestartRequired = append(d.RestartRequired, "observe")
	}
	return d
}
