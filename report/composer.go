package report

import (
	"fmt"
	"strings"
	"time"

	"incident-dispatch/models"
)

const (
	// StatusOpen is the status of every newly composed request.
	StatusOpen = "open"
	// UnknownAddress is used when the submission carried no location.
	UnknownAddress = "Unknown"
)

var serviceNames = map[string]string{
	"input:Graffiti":         "Graffiti",
	"PW:BSM:Damage Property": "Damaged Property",
}

// ServiceName returns the display name of a service code, or the code itself.
func ServiceName(code string) string {
	if name, ok := serviceNames[code]; ok {
		return name
	}
	return code
}

// Input carries everything a municipal report is built from.
type Input struct {
	Classification models.Classification
	Text           string
	Location       string
	ServiceCode    string
	Evidence       []models.ImageEvidence
}

// Composer formats municipal reports. It performs no I/O.
type Composer struct {
	now func() time.Time
}

// NewComposer returns a Composer using clock for timestamps, or time.Now when clock is nil.
func NewComposer(clock func() time.Time) *Composer {
	if clock == nil {
		clock = time.Now
	}
	return &Composer{now: clock}
}

func (c *Composer) Compose(in Input) models.MunicipalReport {
	ts := c.now().UTC().Format(time.RFC3339)

	location := strings.TrimSpace(in.Location)
	address := location
	if address == "" {
		address = UnknownAddress
		location = "Not provided"
	}

	images := make([]models.ReportImage, 0, len(in.Evidence))
	for _, ev := range in.Evidence {
		images = append(images, models.ReportImage{Data: ev.Data, Description: ev.Description})
	}

	return models.MunicipalReport{
		ServiceCode:       in.ServiceCode,
		ServiceName:       ServiceName(in.ServiceCode),
		Description:       describe(in, location, ts),
		AddressString:     address,
		RequestedDatetime: ts,
		Status:            StatusOpen,
		Images:            images,
	}
}

func describe(in Input, location, ts string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Incident report (%s, confidence %.0f%%)\n\n", in.Classification.Level, in.Classification.Confidence*100)
	fmt.Fprintf(&b, "Reported issue: %s\n", strings.TrimSpace(in.Text))
	fmt.Fprintf(&b, "Location: %s\n", location)
	fmt.Fprintf(&b, "Reported at: %s\n\n", ts)
	fmt.Fprintf(&b, "Assessment: %s\n\n", strings.TrimSpace(in.Classification.Reasoning))

	if len(in.Evidence) == 0 {
		b.WriteString("Images: No images provided")
		return b.String()
	}
	b.WriteString("Images:")
	for i, ev := range in.Evidence {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, ev.Description)
	}
	return b.String()
}
