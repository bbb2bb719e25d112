package session

import (
	"encoding/json"

	"riskboard/domain/core"
)

// Session is the identity currently signed in, or the zero value when signed out
type Session struct {
	Identity core.ID
}

// Callback receives the current Session on subscription and on every change
type Callback func(Session)

// SignedIn reports whether the session carries an identity
func (s Session) SignedIn() bool {
	return !s.Identity.IsEmpty()
}

type sessionJSON struct {
	Identity *string `json:"identity"`
}

// MarshalJSON renders a signed-out session as {"identity": null}
func (s Session) MarshalJSON() ([]byte, error) {
	var out sessionJSON
	if s.SignedIn() {
		id := s.Identity.String()
		out.Identity = &id
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts both a null and a string identity
func (s *Session) UnmarshalJSON(data []byte) error {
	var in sessionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.Identity = ""
	if in.Identity != nil {
		s.Identity = core.ID(*in.Identity)
	}
	return nil
}
