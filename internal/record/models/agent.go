package models

import (
	"encoding/json"

	id "curator/pkg/domain"
	dErrors "curator/pkg/domain-errors"
)

// Agent identifies who removed a record: either a concrete user or the
// system itself. It is a closed sum constructed via UserAgent/SystemAgent
// rather than accepting arbitrary values at runtime.
type Agent struct {
	user   id.UserID
	system bool
}

// UserAgent builds an agent for a concrete user. An empty user id is not
// resolvable and fails with a validation error.
func UserAgent(userID id.UserID) (Agent, error) {
	if userID.IsNil() {
		return Agent{}, dErrors.New(dErrors.CodeValidation, "removed_by user id is empty")
	}
	return Agent{user: userID}, nil
}

// SystemAgent builds the agent used for automated removals.
func SystemAgent() Agent {
	return Agent{system: true}
}

// IsSystem reports whether the removal was automated.
func (a Agent) IsSystem() bool {
	return a.system
}

// UserID returns the acting user, or the zero UserID for system agents.
func (a Agent) UserID() id.UserID {
	return a.user
}

// IsZero reports whether the agent was never set.
func (a Agent) IsZero() bool {
	return !a.system && a.user.IsNil()
}

// agentDump is the external representation: {"user": "<id>"}. System agents
// serialize with the reserved identifier "system".
type agentDump struct {
	User string `json:"user"`
}

func (a Agent) MarshalJSON() ([]byte, error) {
	if a.system {
		return json.Marshal(agentDump{User: "system"})
	}
	return json.Marshal(agentDump{User: a.user.String()})
}

func (a *Agent) UnmarshalJSON(data []byte) error {
	var dump agentDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "malformed removed_by")
	}
	loaded, err := LoadAgent(dump.User)
	if err != nil {
		return err
	}
	*a = loaded
	return nil
}

// LoadAgent rebuilds an agent from its external user field.
func LoadAgent(user string) (Agent, error) {
	if user == "system" {
		return SystemAgent(), nil
	}
	return UserAgent(id.UserID(user))
}
