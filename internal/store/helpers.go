package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/impulsalabs/ventaflow/internal/models"
)

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserState scans one user_states row in column order.
func scanUserState(row rowScanner) (*models.UserState, error) {
	var state models.UserState
	var displayName, role, tagsJSON, historyJSON sql.NullString
	err := row.Scan(
		&state.UserID, &displayName, &role, &state.ConsentStatus, &state.ActiveFlow,
		&state.FlowStep, &state.AwaitingInputKind, &state.SelectedOfferingID,
		&state.InteractionCount, &state.PriorityScore, &tagsJSON, &historyJSON,
		&state.CreatedAt, &state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	state.DisplayName = displayName.String
	state.Role = role.String

	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &state.ProfileTags); err != nil {
			// Advisory metadata only; continue with empty tags rather than failing.
			state.ProfileTags = nil
		}
	}
	if historyJSON.Valid && historyJSON.String != "" {
		if err := json.Unmarshal([]byte(historyJSON.String), &state.History); err != nil {
			state.History = nil
		}
	}
	return &state, nil
}

// encodeUserStateJSON marshals the JSON-backed columns of a user state record.
func encodeUserStateJSON(state models.UserState) (tagsJSON, historyJSON interface{}, err error) {
	if len(state.ProfileTags) > 0 {
		b, merr := json.Marshal(state.ProfileTags)
		if merr != nil {
			return nil, nil, fmt.Errorf("marshal profile tags: %w", merr)
		}
		tagsJSON = string(b)
	}
	if len(state.History) > 0 {
		b, merr := json.Marshal(state.History)
		if merr != nil {
			return nil, nil, fmt.Errorf("marshal history: %w", merr)
		}
		historyJSON = string(b)
	}
	return tagsJSON, historyJSON, nil
}
