package publish

import (
	"bytes"
	"sort"
	"strconv"
	"strings"
	"time"

	"taskboard/internal/model"
	"taskboard/internal/statusutil"
)

func RenderTaskMarkdown(t model.Task) string {
	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	writeLn("# " + strings.TrimSpace(t.Title))
	writeLn("")
	writeLn("## Meta")
	writeLn("")
	writeLn("- ID: " + t.ID)
	writeLn("- Status: " + statusutil.Label(t.Status))
	if t.ProjectID != nil && strings.TrimSpace(*t.ProjectID) != "" {
		writeLn("- Project: " + strings.TrimSpace(*t.ProjectID))
	}
	if t.GoalID != nil && strings.TrimSpace(*t.GoalID) != "" {
		writeLn("- Goal: " + strings.TrimSpace(*t.GoalID))
	}
	if t.Size != nil {
		writeLn("- Size: " + strings.ToUpper(string(*t.Size)))
	}
	if t.EffortMinutes != nil {
		writeLn("- Effort: " + strconv.Itoa(*t.EffortMinutes) + "m")
	}
	if t.SoftDueAt != nil {
		writeLn("- Due (soft): " + t.SoftDueAt.UTC().Format(time.RFC3339))
	}
	if t.HardDueAt != nil {
		writeLn("- Due (hard): " + t.HardDueAt.UTC().Format(time.RFC3339))
	}
	if tags := cleanTags(t.Tags); len(tags) > 0 {
		writeLn("- Tags: " + strings.Join(tags, ", "))
	}
	writeLn("- Created: " + t.CreatedAt.UTC().Format(time.RFC3339))
	writeLn("- Updated: " + t.UpdatedAt.UTC().Format(time.RFC3339))

	if desc := strings.TrimSpace(t.Description); desc != "" {
		writeLn("")
		writeLn("## Description")
		writeLn("")
		writeLn(desc)
	}
	return buf.String()
}

// RenderBoardMarkdown renders one section per bucket, tasks in board order.
// linkTasks links each task to tasks/<id>.md.
func RenderBoardMarkdown(title string, tasks []model.Task, linkTasks bool) string {
	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = "Task board"
	}
	writeLn("# " + title)

	byBucket := map[string][]model.Task{}
	for _, t := range tasks {
		byBucket[t.Status] = append(byBucket[t.Status], t)
	}
	for _, b := range statusutil.Buckets {
		bt := byBucket[b]
		if len(bt) == 0 {
			continue
		}
		sort.SliceStable(bt, func(i, j int) bool { return bt[i].SortOrder < bt[j].SortOrder })

		writeLn("")
		writeLn("## " + statusutil.Label(b))
		writeLn("")
		for _, t := range bt {
			check := "[ ]"
			if statusutil.IsEndState(t.Status) {
				check = "[x]"
			}
			line := strings.TrimSpace(t.Title)
			if linkTasks {
				line = "[" + line + "](tasks/" + t.ID + ".md)"
			}
			if tags := cleanTags(t.Tags); len(tags) > 0 {
				line += " `#" + strings.Join(tags, "` `#") + "`"
			}
			writeLn("- " + check + " " + line)
		}
	}
	return buf.String()
}

func cleanTags(in []string) []string {
	tags := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
