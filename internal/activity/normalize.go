package activity

import (
	"encoding/json"
	"fmt"
	"time"
)

// rawActivity mirrors the subset of the Drive Activity API response shape
// the pipeline consumes. Every primaryActionDetail has exactly one key; its
// payload shape depends on that key, so it is kept as raw JSON and decoded
// per action kind.
type rawActivity struct {
	Timestamp string `json:"timestamp"`
	TimeRange *struct {
		StartTime string `json:"startTime"`
		EndTime   string `json:"endTime"`
	} `json:"timeRange"`
	PrimaryActionDetail map[string]json.RawMessage `json:"primaryActionDetail"`
	Targets             []rawTarget                `json:"targets"`
}

// rawTarget is one of driveItem | drive | fileComment. The comment form
// dereferences its parent item.
type rawTarget struct {
	DriveItem   *targetRef `json:"driveItem"`
	Drive       *targetRef `json:"drive"`
	FileComment *struct {
		Parent *targetRef `json:"parent"`
	} `json:"fileComment"`
}

type targetRef struct {
	Title    string `json:"title"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

// FromRaw normalises one raw activity record into an Event. The raw payload
// is retained verbatim for equality and debugging. Unknown or malformed
// shapes degrade to action "unknown" rather than failing the poll iteration.
func FromRaw(raw json.RawMessage) (*Event, error) {
	var act rawActivity
	if err := json.Unmarshal(raw, &act); err != nil {
		return nil, fmt.Errorf("activity: decoding record: %w", err)
	}

	ts, err := parseTime(&act)
	if err != nil {
		return nil, err
	}

	ev := &Event{
		Raw:       raw,
		Timestamp: ts,
		Target:    firstTarget(act.Targets),
	}

	ev.Action, ev.Detail, ev.MoveSource = actionInfo(act.PrimaryActionDetail)

	return ev, nil
}

// parseTime returns the instant of an activity: its timestamp, or the end of
// its time range for ranged activities. RFC3339Nano accepts both the
// fractional and non-fractional forms the API emits.
func parseTime(act *rawActivity) (time.Time, error) {
	text := act.Timestamp
	if text == "" && act.TimeRange != nil {
		text = act.TimeRange.EndTime
	}

	ts, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("activity: parsing timestamp %q: %w", text, err)
	}

	return ts.UTC(), nil
}

// firstTarget extracts (title, name, mimeType) from the first target,
// whichever of the three forms it takes.
func firstTarget(targets []rawTarget) Target {
	if len(targets) == 0 {
		return Target{Title: "unknown"}
	}

	return targetInfo(targets[0])
}

func targetInfo(t rawTarget) Target {
	ref := t.DriveItem
	if ref == nil {
		ref = t.Drive
	}

	if ref == nil && t.FileComment != nil {
		ref = t.FileComment.Parent
	}

	if ref == nil {
		return Target{Title: "unknown"}
	}

	title := ref.Title
	if title == "" {
		title = "unknown"
	}

	return Target{Title: title, Name: ref.Name, MimeType: ref.MimeType}
}

// actionInfo extracts the action kind and its payload from the
// primaryActionDetail object, which carries exactly one key.
func actionInfo(detail map[string]json.RawMessage) (action, text string, moveSource *Target) {
	for key, payload := range detail {
		switch key {
		case "create":
			text = oneOf(payload)
		case "move":
			moveSource = moveRemovedParent(payload)
		case "rename":
			var r struct {
				OldTitle string `json:"oldTitle"`
			}
			if json.Unmarshal(payload, &r) == nil {
				text = r.OldTitle
			}
		case "delete", "restore", "dlpChange", "reference":
			var r struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(payload, &r) == nil {
				text = r.Type
			}
		case "permissionChange":
			var r struct {
				AddedPermissions []struct {
					Role string `json:"role"`
				} `json:"addedPermissions"`
			}
			if json.Unmarshal(payload, &r) == nil && len(r.AddedPermissions) > 0 {
				text = r.AddedPermissions[0].Role
			}
		case "comment":
			text = commentSubtype(payload)
		case "settingsChange":
			var r struct {
				RestrictionChanges []struct {
					NewRestriction string `json:"newRestriction"`
				} `json:"restrictionChanges"`
			}
			if json.Unmarshal(payload, &r) == nil && len(r.RestrictionChanges) > 0 {
				text = r.RestrictionChanges[0].NewRestriction
			}
		}

		return key, text, moveSource
	}

	return "unknown", "", nil
}

// moveRemovedParent returns the first removed parent of a move payload, which
// the enrichment stage resolves into the removed path.
func moveRemovedParent(payload json.RawMessage) *Target {
	var r struct {
		RemovedParents []rawTarget `json:"removedParents"`
	}

	if json.Unmarshal(payload, &r) != nil || len(r.RemovedParents) == 0 {
		return nil
	}

	src := targetInfo(r.RemovedParents[0])

	return &src
}

// commentSubtype digs the subtype out of the single comment-kind object
// (post, assignment, suggestion), ignoring the mentionedUsers sibling key.
func commentSubtype(payload json.RawMessage) string {
	var kinds map[string]json.RawMessage
	if json.Unmarshal(payload, &kinds) != nil {
		return ""
	}

	delete(kinds, "mentionedUsers")

	for _, inner := range kinds {
		var r struct {
			Subtype string `json:"subtype"`
		}
		if json.Unmarshal(inner, &r) == nil {
			return r.Subtype
		}
	}

	return ""
}

// oneOf returns the name of the single set property in a JSON object, or
// "unknown" when the object is empty or undecodable.
func oneOf(payload json.RawMessage) string {
	var obj map[string]json.RawMessage
	if json.Unmarshal(payload, &obj) != nil {
		return "unknown"
	}

	for key := range obj {
		return key
	}

	return "unknown"
}
