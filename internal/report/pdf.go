package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/creator"
)

const dateLayout = "2006-01-02"

// SetupLicense registers the unipdf metered license key. Without a key the
// library limits output, so the server calls this at startup when configured.
func SetupLicense(key string) error {
	if key == "" {
		return nil
	}
	return license.SetMeteredKey(key)
}

// buildPDF lays out the weekly report: title, period line, ranked concept
// table, and the embedded chart when one was rendered.
func buildPDF(concepts []ConceptCount, chartPNG []byte, totalQuestions int, from, to time.Time) ([]byte, error) {
	c := creator.New()
	c.SetPageMargins(50, 50, 50, 50)
	c.NewPage()

	title := c.NewParagraph("每週學習分析報告")
	title.SetFontSize(20)
	title.SetMargins(0, 0, 0, 10)
	if err := c.Draw(title); err != nil {
		return nil, err
	}

	period := c.NewParagraph(fmt.Sprintf(
		"統計期間：%s ~ %s　總提問數：%d",
		from.Format(dateLayout), to.Format(dateLayout), totalQuestions,
	))
	period.SetFontSize(11)
	period.SetMargins(0, 0, 0, 16)
	if err := c.Draw(period); err != nil {
		return nil, err
	}

	if err := drawConceptTable(c, concepts); err != nil {
		return nil, err
	}

	if len(chartPNG) > 0 {
		img, err := c.NewImageFromData(chartPNG)
		if err != nil {
			return nil, err
		}
		img.ScaleToWidth(470)
		img.SetMargins(0, 0, 16, 0)
		if err := c.Draw(img); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := c.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawConceptTable(c *creator.Creator, concepts []ConceptCount) error {
	table := c.NewTable(3)
	if err := table.SetColumnWidths(0.15, 0.6, 0.25); err != nil {
		return err
	}

	addCell := func(text string, bold bool) error {
		p := c.NewParagraph(text)
		p.SetFontSize(11)
		if bold {
			p.SetFontSize(12)
		}
		cell := table.NewCell()
		cell.SetBorder(creator.CellBorderSideAll, creator.CellBorderStyleSingle, 1)
		cell.SetIndent(4)
		return cell.SetContent(p)
	}

	for _, header := range []string{"排名", "概念", "提問次數"} {
		if err := addCell(header, true); err != nil {
			return err
		}
	}
	for i, concept := range concepts {
		if err := addCell(fmt.Sprintf("%d", i+1), false); err != nil {
			return err
		}
		if err := addCell(concept.Concept, false); err != nil {
			return err
		}
		if err := addCell(fmt.Sprintf("%d", concept.Count), false); err != nil {
			return err
		}
	}
	return c.Draw(table)
}
