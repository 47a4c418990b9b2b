package config

import "fmt"

// Validate checks the cross-field invariants from §3 and reports every
// violation found, rather than failing on the first one, so an operator
// editing config.json by hand sees the complete list of problems in one
// pass (grounded on the original implementation's config_check.py, which
// walks and repairs the same set of sections one at a time).
func (s *Store) Validate() []error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.validate()
}

func (d *Document) validate() []error {
	var errs []error

	if d.Sys.LogLevel != "info" && d.Sys.LogLevel != "debug" {
		errs = append(errs, fmt.Errorf("sys.log_level must be \"info\" or \"debug\", got %q", d.Sys.LogLevel))
	}

	if d.IRC.Connection.Network == "" {
		errs = append(errs, fmt.Errorf("irc.connection.network is required"))
	}
	if d.IRC.Connection.Nickname == "" {
		errs = append(errs, fmt.Errorf("irc.connection.nickname is required"))
	}
	switch d.IRC.Connection.Authentication {
	case "", "sasl", "nickserv":
	default:
		errs = append(errs, fmt.Errorf("irc.connection.authentication must be \"sasl\", \"nickserv\", or empty, got %q", d.IRC.Connection.Authentication))
	}
	if d.IRC.Connection.MsgDelay < 0 {
		errs = append(errs, fmt.Errorf("irc.connection.msg_delay must not be negative"))
	}

	for ch, p := range d.IRC.Modules.ChannelPrefix {
		if len(p) != 1 {
			errs = append(errs, fmt.Errorf("irc.modules.channel_prefix[%q] must be exactly one character, got %q", ch, p))
		}
	}
	if len(d.IRC.Modules.GlobalPrefix) != 1 {
		errs = append(errs, fmt.Errorf("irc.modules.global_prefix must be exactly one character, got %q", d.IRC.Modules.GlobalPrefix))
	}

	for m, chans := range d.IRC.Modules.Blacklist {
		if len(chans) > 0 && len(d.IRC.Modules.Whitelist[m]) > 0 {
			errs = append(errs, fmt.Errorf("module %q has both a non-empty blacklist and whitelist", m))
		}
	}

	return errs
}
