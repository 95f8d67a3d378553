package main

import (
	"strconv"
	"time"

	"github.com/dimitrije/communities/internal/enrichment"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func renderResult(res enrichment.Result) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Outcome", "Records"})

	rows := []struct {
		label string
		count int
	}{
		{"Records with DOI", res.Total},
		{"Already linked", res.AlreadyLinked},
		{"Missing DOI", res.MissingDOI},
		{"Not in Altmetric", res.NotFound},
		{"Updated", res.Updated},
		{"Failed", res.Failed},
	}
	for _, r := range rows {
		tw.AppendRow(table.Row{r.label, strconv.Itoa(r.count)})
	}
	tw.AppendFooter(table.Row{"Duration", res.Duration.Round(time.Millisecond).String()})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	return tw.Render()
}
