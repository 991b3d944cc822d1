// Package report turns merged fake detection CSVs into the filtered detail
// rows and the per-hub reason summary.
package report

import "errors"

// Upstream column names.
const (
	ColZone       = "zone"
	ColHub        = "hub_name"
	ColReason     = "fake_detection_reason"
	ColStatus     = "fake_detection_status"
	ColUndel      = "undel_unpick_status"
	ColTrackingID = "vendor_tracking_id"
)

// Derived column names.
const (
	ColReasonLabel = "fake_detection_reason1"
	ColL3          = "L3"
	ColL2          = "L2"
	ColL1          = "L1"
	ColCategory    = "Category"
)

// Status values.
const (
	StatusGenuine = "GENUINE"
	StatusFake    = "FAKE"
)

// Reason labels written to ColReasonLabel.
const (
	LabelGenuine        = "Genuine Attempt"
	LabelGeoFake        = "GEO_FAKE"
	LabelNoCallFake     = "NO_CALL_FAKE"
	LabelDeliveredGeo   = "DELIVERED_GEO_FAKE"
	LabelIVRFake        = "IVR_Fake"
	LabelNoCallUDBad    = "NO_CALL_FAKE_UDBad_Fake"
	LabelInvalidCall    = "INVALID_CALL_FAKE"
	LabelUDBadFake      = "UDBad_Fake"
	undelDelivered      = "DELIVERED"
	reasonIVRFake       = "IVR_FAKE"
	reasonGeoFake       = "GEO_FAKE"
	reasonNoCallFake    = "NO_CALL_FAKE"
	reasonNoCallUDBad   = "NO_CALL_FAKE_UDBad_Fake"
	excludedHubFragment = "mynt"
	excludedReasonToken = "spoof"
)

// SummaryReasons are the summary columns, in sheet order.
var SummaryReasons = []string{
	LabelDeliveredGeo,
	LabelGeoFake,
	LabelGenuine,
	LabelInvalidCall,
	LabelNoCallFake,
	LabelIVRFake,
	LabelUDBadFake,
}

// SummaryKeys are the group columns of the summary.
var SummaryKeys = []string{ColHub, ColL3, ColL2, ColL1}

var requiredColumns = []string{ColZone, ColHub, ColReason, ColStatus, ColUndel, ColTrackingID}

var (
	// ErrNoReports means there was nothing to merge.
	ErrNoReports = errors.New("no report files")
	// ErrMissingColumn means the merged report lacks a column the pipeline reads.
	ErrMissingColumn = errors.New("missing column")
)
