package transport

import (
	"fmt"

	"github.com/google/gousb"
	"github.com/pkg/errors"
)

type ProbeKind string

const (
	ProbeKindXDS110 ProbeKind = "xds110"
	ProbeKindUART   ProbeKind = "usb-uart"
	ProbeKindSim    ProbeKind = "simulator"
)

// Probe is a USB device known to carry a UART or SPI link to a CC13xx target.
type Probe struct {
	Kind        ProbeKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Bus         int
	Address     int
}

func (p Probe) Label() string {
	if p.Kind == ProbeKindSim {
		return p.Description
	}
	return fmt.Sprintf("%s (%04x:%04x, bus %d addr %d)", p.Description, p.VendorID, p.ProductID, p.Bus, p.Address)
}

type knownUSBDevice struct {
	Kind        ProbeKind
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownProbes = []knownUSBDevice{
	{Kind: ProbeKindXDS110, VendorID: 0x0451, ProductID: 0xbef3, Description: "TI XDS110 debug probe"},
	{Kind: ProbeKindXDS110, VendorID: 0x0451, ProductID: 0xbef4, Description: "TI XDS110 debug probe (CMSIS-DAP)"},
	{Kind: ProbeKindUART, VendorID: 0x0403, ProductID: 0x6001, Description: "FTDI FT232R"},
	{Kind: ProbeKindUART, VendorID: 0x0403, ProductID: 0x6010, Description: "FTDI FT2232H"},
	{Kind: ProbeKindUART, VendorID: 0x0403, ProductID: 0x6014, Description: "FTDI FT232H"},
	{Kind: ProbeKindUART, VendorID: 0x10c4, ProductID: 0xea60, Description: "Silicon Labs CP210x"},
	{Kind: ProbeKindUART, VendorID: 0x1a86, ProductID: 0x7523, Description: "WCH CH340"},
}

func classifyUSBDevice(desc *gousb.DeviceDesc) (Probe, bool) {
	for _, known := range knownProbes {
		if uint16(desc.Vendor) == known.VendorID && uint16(desc.Product) == known.ProductID {
			return Probe{
				Kind:        known.Kind,
				Description: known.Description,
				VendorID:    known.VendorID,
				ProductID:   known.ProductID,
				Bus:         desc.Bus,
				Address:     desc.Address,
			}, true
		}
	}
	return Probe{}, false
}

// isAccessDenied reports errors from devices the user may not open. Those
// devices are skipped, the rest of the list is still usable.
func isAccessDenied(err error) bool {
	return errors.Is(err, gousb.ErrorAccess)
}

// Discover lists attached USB devices that commonly bridge to a CC13xx
// bootloader. The simulator is always appended.
func Discover() ([]Probe, error) {
	var results []Probe
	usb := gousb.NewContext()
	defer usb.Close()

	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if p, ok := classifyUSBDevice(desc); ok {
			results = append(results, p)
		}
		return false
	})
	if err != nil && !isAccessDenied(err) {
		return results, err
	}

	results = append(results, Probe{Kind: ProbeKindSim, Description: "Simulator (no hardware)"})
	return results, nil
}
