package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/answer"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/dmp"
)

// RenderCSV flattens the narrative into one row per emitted question. The
// header row is always written and carries only the enabled columns.
func RenderCSV(display DisplayOptions, plan *dmp.Plan) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, 0, 3)
	if display.IncludeSectionHeadings {
		header = append(header, "Section")
	}
	if display.IncludeQuestionText {
		header = append(header, "Question")
	}
	header = append(header, "Answer")
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, section := range plan.Sections() {
		for _, q := range section.Questions {
			value := answer.Resolve(q.Answer)
			answered := answer.IsAnswered(value)
			if !answered && !display.IncludeUnansweredQuestions {
				continue
			}
			row := make([]string, 0, len(header))
			if display.IncludeSectionHeadings {
				row = append(row, section.Title)
			}
			if display.IncludeQuestionText {
				row = append(row, answer.PlainText(q.Text))
			}
			cell := ""
			if answered {
				cell = answer.Scalar(value)
			}
			row = append(row, cell)
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
