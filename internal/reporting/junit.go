// internal/reporting/junit.go
package reporting

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

const junitSuiteName = "flowcheck"

// junitDocument renders the report in the JUnit XML dialect understood by
// most CI servers. Every test becomes a testcase classed by its module.
func junitDocument(report *schemas.TestRunReport) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	s := report.Summary
	root := doc.CreateElement("testsuites")
	root.CreateAttr("name", junitSuiteName)
	setCounts(root, s, report.Duration)

	suite := root.CreateElement("testsuite")
	suite.CreateAttr("name", xmlText(report.RunID))
	setCounts(suite, s, report.Duration)
	suite.CreateAttr("timestamp", report.StartTime.UTC().Format("2006-01-02T15:04:05"))

	for _, r := range report.Results {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("classname", xmlText(r.Module))
		tc.CreateAttr("name", xmlText(r.Name))
		tc.CreateAttr("time", seconds(r.Duration))

		props := tc.CreateElement("properties")
		addProperty(props, "id", r.TestID)
		addProperty(props, "attempts", strconv.Itoa(r.Attempts))
		if len(r.AgentsDeployed) > 0 {
			addProperty(props, "remediation", strings.Join(r.AgentsDeployed, ","))
		}

		switch r.Status {
		case schemas.StatusSkipped:
			tc.CreateElement("skipped")
		case schemas.StatusFailed:
			failure := tc.CreateElement("failure")
			if r.Error != nil {
				failure.CreateAttr("type", xmlText(string(r.Error.Type)))
				failure.CreateAttr("message", xmlText(r.Error.Message))
				failure.SetText(xmlText(failureText(r.Error)))
			} else {
				failure.CreateAttr("message", "test failed")
			}
		}

		if len(r.Logs) > 0 {
			var out strings.Builder
			for _, l := range r.Logs {
				fmt.Fprintf(&out, "[%s] %s\n", l.Level, l.Text)
			}
			tc.CreateElement("system-out").SetText(xmlText(out.String()))
		}
	}

	doc.Indent(2)
	return doc
}

func setCounts(el *etree.Element, s schemas.Summary, durationMs int64) {
	el.CreateAttr("tests", strconv.Itoa(s.Total))
	el.CreateAttr("failures", strconv.Itoa(s.Failed))
	el.CreateAttr("errors", "0")
	el.CreateAttr("skipped", strconv.Itoa(s.Skipped))
	el.CreateAttr("time", seconds(durationMs))
}

func addProperty(props *etree.Element, name, value string) {
	p := props.CreateElement("property")
	p.CreateAttr("name", name)
	p.CreateAttr("value", xmlText(value))
}

func failureText(e *schemas.TestError) string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Selector != "" {
		fmt.Fprintf(&b, "\nselector: %s", e.Selector)
	}
	if e.Screenshot != "" {
		fmt.Fprintf(&b, "\nscreenshot: %s", e.Screenshot)
	}
	if e.Stack != "" {
		b.WriteString("\n\n")
		b.WriteString(e.Stack)
	}
	return b.String()
}

// xmlText drops the runes XML 1.0 cannot carry, such as the ANSI escapes
// and NUL bytes that show up in browser console output.
func xmlText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t', r == '\n', r == '\r':
			return r
		case r >= 0x20 && r <= 0xD7FF, r >= 0xE000 && r <= 0xFFFD, r >= 0x10000 && r <= 0x10FFFF:
			return r
		}
		return -1
	}, s)
}

func seconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', 3, 64)
}

func writeJUnit(path string, report *schemas.TestRunReport) error {
	return junitDocument(report).WriteToFile(path)
}
