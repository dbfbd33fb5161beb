package ingest

import (
	"encoding/binary"
	"strings"

	"github.com/nerrad567/fieldgate/internal/device"
)

// ScanEvent is the JSON document a radio scanner publishes per
// advertisement.
type ScanEvent struct {
	Address          string          `json:"address"`
	AddressType      string          `json:"addressType"`
	LocalName        *string         `json:"localName,omitempty"`
	TxPowerLevel     *int            `json:"txPowerLevel,omitempty"`
	RSSI             *int            `json:"rssi,omitempty"`
	ManufacturerData device.HexBytes `json:"manufacturerData,omitempty"`
}

// MSDDecoder decodes manufacturer-specific data.
type MSDDecoder interface {
	DecodeMSD(data []byte) (device.ManufacturerData, error)
}

// RawDecoder splits manufacturer data into its little-endian company id and
// the remaining payload.
type RawDecoder struct{}

// DecodeMSD implements MSDDecoder.
func (RawDecoder) DecodeMSD(data []byte) (device.ManufacturerData, error) {
	if len(data) < 2 {
		return device.ManufacturerData{}, ErrShortManufacturerData
	}
	return device.ManufacturerData{
		CompanyID: binary.LittleEndian.Uint16(data[:2]),
		Payload:   append(device.HexBytes(nil), data[2:]...),
	}, nil
}

// Normalizer converts scan events into reports.
type Normalizer struct {
	msd MSDDecoder
}

// NewNormalizer creates a normalizer. A nil decoder uses RawDecoder.
func NewNormalizer(msd MSDDecoder) *Normalizer {
	if msd == nil {
		msd = RawDecoder{}
	}
	return &Normalizer{msd: msd}
}

// Normalize builds a report from ev. Events carrying a local name are scan
// responses. Data elements are ordered local name, tx power, manufacturer
// data; manufacturer data that fails to decode is left out. It returns
// false when the report would carry no data.
func (n *Normalizer) Normalize(ev ScanEvent) (device.Report, bool) {
	report := device.Report{
		Address:     strings.ToUpper(ev.Address),
		EventType:   device.EventAdvInd,
		AddressType: device.AddressRandom,
		RSSI:        ev.RSSI,
	}
	if strings.EqualFold(ev.AddressType, "public") {
		report.AddressType = device.AddressPublic
	}

	if ev.LocalName != nil {
		report.EventType = device.EventScanRsp
		report.Data = append(report.Data, device.DataElement{
			Type:  device.DataLocalNameShort,
			Value: *ev.LocalName,
		})
	}
	if ev.TxPowerLevel != nil {
		report.Data = append(report.Data, device.DataElement{
			Type:  device.DataTxPowerLevel,
			Value: *ev.TxPowerLevel,
		})
	}
	if md, err := n.msd.DecodeMSD(ev.ManufacturerData); err == nil {
		report.Data = append(report.Data, device.DataElement{
			Type:  device.DataManufacturerData,
			Value: md,
		})
	}

	return report, len(report.Data) > 0
}
