package registry

import (
	"time"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
)

// ElectionRecord is the registry API's representation of an election.
type ElectionRecord struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	Status           string    `json:"status"`
	RegisteredVoters int64     `json:"registeredVoters"`
}

func (r ElectionRecord) ToDomain() domain.Election {
	return domain.Election{
		ID:               r.ID,
		Name:             r.Name,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		Status:           domain.ElectionStatus(r.Status),
		RegisteredVoters: r.RegisteredVoters,
	}
}

// ConstituencyRecord describes one smart contract and the district it
// serves.
type ConstituencyRecord struct {
	ID               string `json:"id"`
	ElectionID       string `json:"electionId"`
	Name             string `json:"name"`
	Region           string `json:"region"`
	RegisteredVoters int64  `json:"registeredVoters"`
}

func (r ConstituencyRecord) ToDomain() domain.Constituency {
	return domain.Constituency{
		ID:               r.ID,
		ElectionID:       r.ElectionID,
		Name:             r.Name,
		Region:           r.Region,
		RegisteredVoters: r.RegisteredVoters,
	}
}

// QueryParams narrows a listing request.
type QueryParams struct {
	Status string
	Limit  int
	Offset int
}
