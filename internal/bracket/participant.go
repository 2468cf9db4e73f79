package bracket

// ParticipantID is the opaque identifier handed to us by the participant directory.
type ParticipantID string

type Participant struct {
	ID   ParticipantID `json:"id" msgpack:"id"`
	Name string        `json:"name,omitempty" msgpack:"name"`
	// Seed is 1-based, lower is better. Zero until the seeding service has run.
	Seed         int      `json:"seed" msgpack:"seed"`
	RankingScore *float64 `json:"ranking_score,omitempty" msgpack:"ranking_score"`
	// RegistrationOrder breaks ranking ties and orders the random shuffle input.
	RegistrationOrder int `json:"registration_order" msgpack:"registration_order"`
}

// IDs returns the participant identifiers in slice order.
func IDs(participants []Participant) []ParticipantID {
	ids := make([]ParticipantID, len(participants))
	for i, p := range participants {
		ids[i] = p.ID
	}
	return ids
}
