package models

import (
	"errors"
	"strings"
)

// IncidentSubmission is one normalized intake.
type IncidentSubmission struct {
	Text     string
	Location string
	Images   [][]byte
}

// ImageEvidence pairs an image with the description derived from it.
type ImageEvidence struct {
	Index       int    `json:"index"`
	Data        []byte `json:"-"`
	Description string `json:"description"`
}

// ReportImage is an attachment of a municipal report. Data encodes as base64 in JSON.
type ReportImage struct {
	Data        []byte `json:"data"`
	Description string `json:"description"`
}

// MunicipalReport is a draft 311 request.
type MunicipalReport struct {
	ServiceCode       string        `json:"service_code"`
	ServiceName       string        `json:"service_name"`
	Description       string        `json:"description"`
	AddressString     string        `json:"address_string"`
	Lat               *float64      `json:"lat"`
	Long              *float64      `json:"long"`
	RequestedDatetime string        `json:"requested_datetime"`
	Status            string        `json:"status"`
	Images            []ReportImage `json:"images"`
}

// Validate checks the fields the municipal endpoint requires.
func (r *MunicipalReport) Validate() error {
	if r == nil {
		return errors.New("report_data is required")
	}
	if strings.TrimSpace(r.ServiceCode) == "" {
		return errors.New("report_data.service_code is required")
	}
	if strings.TrimSpace(r.Description) == "" {
		return errors.New("report_data.description is required")
	}
	if strings.TrimSpace(r.AddressString) == "" {
		return errors.New("report_data.address_string is required")
	}
	return nil
}

// EmergencyPayload is the context carried from draft to emergency call.
type EmergencyPayload struct {
	IncidentText string `json:"incident_text"`
	Location     string `json:"location"`
}

// Validate checks the payload carries an incident description.
func (p *EmergencyPayload) Validate() error {
	if p == nil {
		return errors.New("report_data is required")
	}
	if strings.TrimSpace(p.IncidentText) == "" {
		return errors.New("report_data.incident_text is required")
	}
	return nil
}

// ActionPlan is the routing decision for one classification.
type ActionPlan struct {
	Track             Track
	NeedsConfirmation bool
	ServiceCode       string
	RecommendedAction string
	Report            *MunicipalReport
	Emergency         *EmergencyPayload
}

// Payload returns the track-specific payload, or nil for the none track.
func (p ActionPlan) Payload() any {
	switch p.Track {
	case TrackMunicipal:
		if p.Report != nil {
			return p.Report
		}
	case TrackEmergency:
		if p.Emergency != nil {
			return p.Emergency
		}
	}
	return nil
}
