package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xiaot623/gogo/consult/internal/domain"
	"github.com/xiaot623/gogo/consult/internal/service"
)

func renderJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderResponse(w io.Writer, resp *domain.ConsultationResponse) error {
	var b strings.Builder
	if resp.LowConfidence || len(resp.Candidates) == 0 {
		b.WriteString("No confident match. Please describe your symptoms in more detail.\n")
	}
	for i, c := range resp.Candidates {
		fmt.Fprintf(&b, "%d. %s (%.0f%%)\n", i+1, c.Condition, c.Confidence*100)
		if len(c.RecommendedMedications) > 0 {
			meds := make([]string, 0, len(c.RecommendedMedications))
			for _, m := range c.RecommendedMedications {
				meds = append(meds, string(m))
			}
			fmt.Fprintf(&b, "   medications: %s\n", strings.Join(meds, ", "))
		}
	}
	fmt.Fprintf(&b, "\n%s\nrequestId: %s\n", resp.Disclaimer, resp.RequestID)
	_, err := io.WriteString(w, b.String())
	return err
}

func renderContext(w io.Writer, view *service.ContextView) error {
	var b strings.Builder
	fmt.Fprintf(&b, "user: %s (%d/%d turns)\n", view.UserID, len(view.Turns), view.MaxTurns)
	for _, t := range view.Turns {
		fmt.Fprintf(&b, "- [%s] %s\n  -> %s\n", t.Timestamp.Format("2006-01-02 15:04:05"), t.Message, t.Response)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
