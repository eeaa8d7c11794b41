package assign

import (
	"context"
	"errors"
	"math/rand"

	"github.com/sirupsen/logrus"

	"taskpilot/internal/domain"
	"taskpilot/internal/recommend"
	"taskpilot/internal/repo"
)

// ErrNoCandidates means the project has no memberships at all, so neither
// automatic nor manual assignment can produce an assignee.
var ErrNoCandidates = errors.New("project has no members to assign to")

// Decision is the outcome of assignee resolution: either Auto is set, or
// Candidates holds the memberships to offer for manual choice.
type Decision struct {
	Auto       *domain.Membership
	Candidates []domain.Membership
}

// Resolver picks a task's initial assignee. A recommender failure of any
// kind degrades to manual choice; it is never surfaced to the user.
type Resolver struct {
	Repo        repo.Repo
	Recommender recommend.Client
	Log         *logrus.Logger
	// Intn is rand.Intn unless a test pins it.
	Intn func(n int) int
}

func New(r repo.Repo, rec recommend.Client, log *logrus.Logger) Resolver {
	return Resolver{Repo: r, Recommender: rec, Log: log, Intn: rand.Intn}
}

func (rv Resolver) intn(n int) int {
	if rv.Intn != nil {
		return rv.Intn(n)
	}
	return rand.Intn(n)
}

// Resolve suggests an assignee for a task description within a project.
// Members holding the recommended role are chosen among uniformly at random.
// When the recommendation fails or names a role nobody holds, every project
// member becomes a manual-choice candidate.
func (rv Resolver) Resolve(ctx context.Context, projectID int64, description string) (Decision, error) {
	members, err := rv.Repo.ProjectMemberships(ctx, projectID)
	if err != nil {
		return Decision{}, err
	}
	if len(members) == 0 {
		return Decision{}, ErrNoCandidates
	}

	roles, err := rv.Repo.ProjectRoles(ctx, projectID)
	if err != nil {
		return Decision{}, err
	}

	role, err := rv.Recommender.SuggestRole(ctx, description, roles)
	if err != nil {
		if rv.Log != nil {
			rv.Log.WithError(err).WithField("project_id", projectID).Info("role recommendation failed, falling back to manual choice")
		}
		return Decision{Candidates: members}, nil
	}

	holders, err := rv.Repo.MembersWithRole(ctx, projectID, role)
	if err != nil {
		return Decision{}, err
	}
	if len(holders) == 0 {
		if rv.Log != nil {
			rv.Log.WithFields(logrus.Fields{"project_id": projectID, "role": role}).Info("recommended role has no holders, falling back to manual choice")
		}
		return Decision{Candidates: members}, nil
	}
	pick := holders[rv.intn(len(holders))]
	return Decision{Auto: &pick}, nil
}
