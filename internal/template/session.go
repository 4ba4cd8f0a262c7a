package template

import (
	"strings"
	"time"

	"github.com/DiamondLightSource/numtracker/internal/numerrors"
)

// Session holds the values derivable from a session identifier string
// of the form "<proposal-code><digits>-<visit-digits>".
type Session struct {
	Visit    string
	Proposal string
}

// ParseSession splits a session identifier into visit/proposal. visit
// is the identifier verbatim; proposal is everything before the final
// '-'. A missing '-', or an empty proposal/visit-suffix, is
// InvalidSession.
func ParseSession(session string) (Session, error) {
	idx := strings.LastIndexByte(session, '-')
	if idx <= 0 || idx == len(session)-1 {
		return Session{}, numerrors.InvalidSessionErr(session)
	}
	proposal := session[:idx]
	suffix := session[idx+1:]
	if proposal == "" || suffix == "" {
		return Session{}, numerrors.InvalidSessionErr(session)
	}
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return Session{}, numerrors.InvalidSessionErr(session)
		}
	}
	return Session{Visit: session, Proposal: proposal}, nil
}

// CurrentYear returns the current calendar year in the service's
// local timezone, for the {year} placeholder.
func CurrentYear(now time.Time) string {
	return now.Local().Format("2006")
}
