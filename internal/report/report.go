// Package report renders a group's finished results as an HTML page (a
// success table and a failure table) and optionally emails it, mirroring
// original_source's mail/templates.py and mail/send_mail.py.
package report

import (
	"bytes"
	"html/template"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/hrygo/fedsched/internal/task"
)

const pageTemplate = `<div style="width: 80%; margin-left: 10%">
    <h3>Group {{.Name}} Finished</h3>
    <p>{{.Total}} tasks total, {{.SuccessCount}} successful, {{.FailCount}} failed.</p>
    <HR style="FILTER: alpha(opacity=100,finishopacity=0,style=1)" width="100%" color=#987cb9 SIZE=3>
    <div>
        <p>Successful:</p>
        <table border>
        <tr><td>task id</td><td>train acc</td><td>val acc</td><td>data</td><td>load time</td><td>train time</td></tr>
        {{range .Success}}<tr><td>{{.ID}}</td><td>{{.Data.TrainAcc}}</td><td>{{.Data.ValAcc}}</td><td>{{.Data.Data}}</td><td>{{.Data.LoadTime}}</td><td>{{.Data.TrainTime}}</td></tr>
        {{end}}</table>
    </div>
    <div>
        <p>Exception:</p>
        <table border>
        <tr><td>task id</td><td>stage</td><td>message</td></tr>
        {{range .Fail}}<tr><td>{{.ID}}</td><td>{{.Data.Stage}}</td><td>{{.Data.Message}}</td></tr>
        {{end}}</table>
    </div>
</div>`

var page = template.Must(template.New("group").Parse(pageTemplate))

type successRow struct {
	ID   string
	Data *task.SuccessResult
}

type failRow struct {
	ID   string
	Data *task.FailResult
}

type pageData struct {
	Name         string
	Total        int
	SuccessCount int
	FailCount    int
	Success      []successRow
	Fail         []failRow
}

// Render builds the group's HTML report as a string.
func Render(groupName string, results map[string]task.Result) (string, error) {
	var data pageData
	data.Name = groupName
	data.Total = len(results)

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		r := results[id]
		if r.Success != nil {
			data.Success = append(data.Success, successRow{ID: id, Data: r.Success})
			data.SuccessCount++
		} else if r.Fail != nil {
			data.Fail = append(data.Fail, failRow{ID: id, Data: r.Fail})
			data.FailCount++
		}
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "report: render template")
	}
	return buf.String(), nil
}

// WriteFile renders the group's report and writes it under
// workdir/reports/{groupName}.html, always — independent of whether SMTP
// delivery is configured, mirroring Mail.send_group_result's unconditional
// disk write.
func WriteFile(workdir, groupName string, results map[string]task.Result) (string, error) {
	html, err := Render(groupName, results)
	if err != nil {
		return "", err
	}
	reportsDir := filepath.Join(workdir, "reports")
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return "", errors.Wrap(err, "report: create reports dir")
	}
	path := filepath.Join(reportsDir, groupName+".html")
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return "", errors.Wrap(err, "report: write report file")
	}
	return path, nil
}
