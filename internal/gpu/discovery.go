// Package gpu inventories display adapters exposed through the Linux DRM
// sysfs class. It complements the compute driver on hosts where no compute
// device is reachable but graphics hardware is still present.
package gpu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/jaypipes/pcidb"
)

const drmClassPath = "class/drm"

// pciDatabase loads the PCI ID database once. It is nil when no copy is
// installed.
var pciDatabase = sync.OnceValue(func() *pcidb.PCIDB {
	db, err := pcidb.New()
	if err != nil {
		return nil
	}
	return db
})

// Info describes a display adapter found under class/drm.
type Info struct {
	ID             string
	PCI            string
	PCIID          string
	Name           string
	Driver         string
	RenderNode     string
	VRAMTotalBytes *uint64
	VRAMUsedBytes  *uint64
}

// Inventory lists adapters below a sysfs root.
type Inventory struct {
	root   string
	logger *slog.Logger
}

// NewInventory constructs an Inventory rooted at sysfsRoot.
func NewInventory(sysfsRoot string, logger *slog.Logger) *Inventory {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if sysfsRoot == "" {
		sysfsRoot = "/sys"
	}
	return &Inventory{root: sysfsRoot, logger: logger}
}

// Adapters returns the adapters sorted by card number.
func (i *Inventory) Adapters(_ context.Context) ([]Info, error) {
	return Discover(i.root, i.logger)
}

// Discover enumerates DRM cards exposed via sysfs under the provided root.
// A missing DRM class yields no adapters and no error.
func Discover(root string, logger *slog.Logger) ([]Info, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sysRoot, err := os.OpenRoot(root)
	if err != nil {
		return nil, fmt.Errorf("open sysfs root: %w", err)
	}
	defer sysRoot.Close()

	entries, err := fs.ReadDir(sysRoot.FS(), drmClassPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("drm class path missing", "path", filepath.Join(root, drmClassPath))
			return nil, nil
		}
		return nil, fmt.Errorf("read drm class dir: %w", err)
	}

	var adapters []Info
	for _, entry := range entries {
		name := entry.Name()
		if !isCardName(name) {
			continue
		}
		if !entry.IsDir() && entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		cardRoot, err := sysRoot.OpenRoot(filepath.Join(drmClassPath, name))
		if err != nil {
			logger.Warn("failed to open card root", "card", name, "err", err)
			continue
		}

		info, err := readAdapter(name, cardRoot)
		if err := cardRoot.Close(); err != nil {
			logger.Debug("failed to close card root", "card", name, "err", err)
		}
		if err != nil {
			logger.Warn("failed to read adapter", "card", name, "err", err)
			continue
		}
		adapters = append(adapters, info)
	}

	sort.Slice(adapters, func(a, b int) bool {
		return cardNumber(adapters[a].ID) < cardNumber(adapters[b].ID)
	})
	return adapters, nil
}

func readAdapter(cardID string, cardRoot *os.Root) (Info, error) {
	deviceRoot, err := cardRoot.OpenRoot("device")
	if err != nil {
		return Info{}, fmt.Errorf("open device root: %w", err)
	}
	defer deviceRoot.Close()

	info := Info{ID: cardID}
	var subVendor, subDevice string

	if data, err := deviceRoot.ReadFile("uevent"); err == nil {
		text := string(data)
		info.PCI = parseKeyValue(text, "PCI_SLOT_NAME")
		info.PCIID = parseKeyValue(text, "PCI_ID")
		info.Driver = parseKeyValue(text, "DRIVER")
		info.Name = parseKeyValue(text, "PCI_ID_NAME")
		if vendor, device, ok := strings.Cut(parseKeyValue(text, "PCI_SUBSYS_ID"), ":"); ok {
			subVendor, subDevice = vendor, device
		}
	}

	if info.PCIID == "" {
		if vendor, err := readTrim(deviceRoot, "vendor"); err == nil {
			if device, err := readTrim(deviceRoot, "device"); err == nil {
				info.PCIID = formatHexPair(vendor, device)
			}
		}
	}
	if info.Name == "" {
		info.Name, _ = readTrim(deviceRoot, "product_name")
	}
	if subVendor == "" {
		subVendor, _ = readTrim(deviceRoot, "subsystem_vendor")
	}
	if subDevice == "" {
		subDevice, _ = readTrim(deviceRoot, "subsystem_device")
	}

	if resolved := resolveName(pciDatabase(), info.PCIID, subVendor, subDevice); preferResolved(info.Name, resolved) {
		info.Name = resolved
	}
	if info.Name == "" {
		info.Name = info.Driver
	}

	info.RenderNode = findRenderNode(deviceRoot)
	info.VRAMTotalBytes = readUint(deviceRoot, "mem_info_vram_total")
	info.VRAMUsedBytes = readUint(deviceRoot, "mem_info_vram_used")

	return info, nil
}

func findRenderNode(deviceRoot *os.Root) string {
	entries, err := fs.ReadDir(deviceRoot.FS(), "drm")
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if name := entry.Name(); strings.HasPrefix(name, "renderD") {
			return filepath.Join("/dev/dri", name)
		}
	}
	return ""
}

func parseKeyValue(data, key string) string {
	prefix := key + "="
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		if value, ok := strings.CutPrefix(scanner.Text(), prefix); ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func readTrim(root *os.Root, name string) (string, error) {
	data, err := root.ReadFile(name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readUint(root *os.Root, name string) *uint64 {
	value, err := readTrim(root, name)
	if err != nil || value == "" {
		return nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

func formatHexPair(vendor, device string) string {
	return strings.TrimPrefix(vendor, "0x") + ":" + strings.TrimPrefix(device, "0x")
}

// isCardName accepts "card<N>" and rejects connector entries such as
// "card0-DP-1".
func isCardName(name string) bool {
	suffix, ok := strings.CutPrefix(name, "card")
	if !ok || suffix == "" {
		return false
	}
	for _, r := range suffix {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func cardNumber(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "card"))
	if err != nil {
		return -1
	}
	return n
}

// resolveName looks pciID ("vvvv:dddd") up in db. A subsystem entry for the
// board vendor wins over the chip name.
func resolveName(db *pcidb.PCIDB, pciID, subVendor, subDevice string) string {
	vendor, device, ok := strings.Cut(pciID, ":")
	if db == nil || !ok {
		return ""
	}
	vendor, device = normalizePCIID(vendor), normalizePCIID(device)
	if vendor == "" || device == "" {
		return ""
	}
	product := db.Products[vendor+device]
	if product == nil {
		return ""
	}

	subVendor, subDevice = normalizePCIID(subVendor), normalizePCIID(subDevice)
	if subVendor != "" && subDevice != "" {
		for _, sub := range product.Subsystems {
			if sub == nil || sub.Name == "" {
				continue
			}
			if strings.EqualFold(sub.VendorID, subVendor) && strings.EqualFold(sub.ID, subDevice) {
				return sub.Name
			}
		}
	}
	return product.Name
}

// preferResolved reports whether a database name should replace current,
// which is kept unless it is empty, a bare driver name or a raw id.
func preferResolved(current, resolved string) bool {
	if resolved == "" {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(current))
	switch lower {
	case "", "amdgpu", "radeon", "nouveau", "nvidia", "i915", "xe", "unknown":
		return true
	}
	return strings.HasPrefix(lower, "pci device") || strings.HasPrefix(lower, "0x")
}

// normalizePCIID lower-cases a hex id, drops any 0x prefix and pads it to
// four digits.
func normalizePCIID(raw string) string {
	value := strings.TrimSpace(raw)
	if len(value) > 1 && value[0] == '0' && (value[1] == 'x' || value[1] == 'X') {
		value = value[2:]
	}
	if value == "" {
		return ""
	}
	value = strings.ToLower(value)
	if len(value) < 4 {
		value = strings.Repeat("0", 4-len(value)) + value
	}
	return value
}
