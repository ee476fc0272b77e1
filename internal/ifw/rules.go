// Package ifw models Intent Firewall rule files and applies component
// filters to them.
//
// A rule file lives at <ifw dir>/<package>.xml:
//
//	<rules>
//	   <activity block="true" log="false">
//	      <component-filter name="com.example/com.example.MainActivity" />
//	   </activity>
//	   <broadcast block="true" log="false">...</broadcast>
//	   <service block="true" log="false">...</service>
//	</rules>
package ifw

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

const indent = "   "

// Partition names the rule sections a component can be filtered in.
type Partition string

const (
	PartitionActivity  Partition = "activity"
	PartitionBroadcast Partition = "broadcast"
	PartitionService   Partition = "service"
)

// PartitionFor maps a component kind to its rule section. Providers have
// no section.
func PartitionFor(kind domain.ComponentType) (Partition, error) {
	switch kind {
	case domain.ComponentActivity:
		return PartitionActivity, nil
	case domain.ComponentReceiver:
		return PartitionBroadcast, nil
	case domain.ComponentService:
		return PartitionService, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedComponent, kind)
}

// Rules is one package's rule file.
type Rules struct {
	XMLName   xml.Name   `xml:"rules"`
	Activity  *Component `xml:"activity,omitempty"`
	Broadcast *Component `xml:"broadcast,omitempty"`
	Service   *Component `xml:"service,omitempty"`
	// Hand written rules we do not manage, kept verbatim.
	Other []RawElement `xml:",any"`
}

// Component is one rule section.
type Component struct {
	Block   bool              `xml:"block,attr"`
	Log     bool              `xml:"log,attr"`
	Filters []ComponentFilter `xml:"component-filter"`
	Other   []RawElement      `xml:",any"`
}

// ComponentFilter matches a single flattened component name.
type ComponentFilter struct {
	Name string `xml:"name,attr"`
}

// RawElement keeps an element we do not interpret.
type RawElement struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}

// NewRules returns an empty rule set.
func NewRules() *Rules {
	return &Rules{}
}

// Decode parses a rule file.
func Decode(data []byte) (*Rules, error) {
	var r Rules
	if err := xml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode ifw rules: %w", err)
	}
	return &r, nil
}

// UnmarshalXML merges repeated blocking sections into one and keeps
// sections that do not block (log only) verbatim in Other, so they are
// never mistaken for blocks.
func (r *Rules) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	if start.Name.Local != "rules" {
		return fmt.Errorf("expected element <rules> but have <%s>", start.Name.Local)
	}
	r.XMLName = start.Name
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			slot := r.slot(Partition(t.Name.Local))
			if slot == nil || !blocks(t) {
				var raw RawElement
				if err := d.DecodeElement(&raw, &t); err != nil {
					return err
				}
				if slot != nil && len(bytes.TrimSpace(raw.Inner)) == 0 {
					continue
				}
				r.Other = append(r.Other, raw)
				continue
			}
			var c Component
			if err := d.DecodeElement(&c, &t); err != nil {
				return err
			}
			if *slot == nil {
				*slot = &c
				continue
			}
			(*slot).Filters = append((*slot).Filters, c.Filters...)
			(*slot).Other = append((*slot).Other, c.Other...)
		case xml.EndElement:
			return nil
		}
	}
}

func blocks(start xml.StartElement) bool {
	for _, a := range start.Attr {
		if a.Name.Local == "block" {
			return strings.EqualFold(strings.TrimSpace(a.Value), "true")
		}
	}
	return false
}

// Encode serializes rules. Sections without filters are dropped so the
// output never contains empty tags.
func Encode(r *Rules) ([]byte, error) {
	out := r.compact()
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", indent)
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("failed to encode ifw rules: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// IsEmpty reports whether the rule set has nothing worth a file.
func (r *Rules) IsEmpty() bool {
	if len(r.Other) > 0 {
		return false
	}
	for _, c := range []*Component{r.Activity, r.Broadcast, r.Service} {
		if !c.empty() {
			return false
		}
	}
	return true
}

// Add appends a filter to the partition. It returns false if an equivalent
// filter is already present.
func (r *Rules) Add(p Partition, name string) bool {
	c := r.section(p, true)
	key := normalizeFilter(name)
	for _, f := range c.Filters {
		if normalizeFilter(f.Name) == key {
			return false
		}
	}
	c.Filters = append(c.Filters, ComponentFilter{Name: name})
	return true
}

// Remove deletes every filter equivalent to name from the partition. It returns
// false when nothing was removed.
func (r *Rules) Remove(p Partition, name string) bool {
	c := r.section(p, false)
	if c == nil {
		return false
	}
	key := normalizeFilter(name)
	kept := c.Filters[:0]
	removed := false
	for _, f := range c.Filters {
		if normalizeFilter(f.Name) == key {
			removed = true
			continue
		}
		kept = append(kept, f)
	}
	c.Filters = kept
	return removed
}

// Contains reports whether any partition filters name.
func (r *Rules) Contains(name string) bool {
	key := normalizeFilter(name)
	for _, c := range []*Component{r.Broadcast, r.Service, r.Activity} {
		if c == nil || !c.Block {
			continue
		}
		for _, f := range c.Filters {
			if normalizeFilter(f.Name) == key {
				return true
			}
		}
	}
	return false
}

// Names returns the filter names of a partition in file order.
func (r *Rules) Names(p Partition) []string {
	c := r.section(p, false)
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Filters))
	for _, f := range c.Filters {
		names = append(names, f.Name)
	}
	return names
}

// Count returns the number of filters across all partitions.
func (r *Rules) Count() int {
	n := 0
	for _, c := range []*Component{r.Activity, r.Broadcast, r.Service} {
		if c != nil {
			n += len(c.Filters)
		}
	}
	return n
}

func (r *Rules) slot(p Partition) **Component {
	switch p {
	case PartitionActivity:
		return &r.Activity
	case PartitionBroadcast:
		return &r.Broadcast
	case PartitionService:
		return &r.Service
	}
	return nil
}

func (r *Rules) section(p Partition, create bool) *Component {
	slot := r.slot(p)
	if slot == nil {
		return nil
	}
	if create && *slot != nil && !(*slot).Block {
		if err := r.detach(p); err != nil {
			(*slot).Block = true
		}
	}
	if *slot == nil && create {
		*slot = &Component{Block: true, Log: false}
	}
	return *slot
}

// rawSection is a Component with its element name, for re-encoding.
type rawSection struct {
	XMLName xml.Name
	Block   bool              `xml:"block,attr"`
	Log     bool              `xml:"log,attr"`
	Filters []ComponentFilter `xml:"component-filter"`
	Other   []RawElement      `xml:",any"`
}

// detach moves the section of p into Other, dropping it when empty.
func (r *Rules) detach(p Partition) error {
	slot := r.slot(p)
	c := *slot
	if c.empty() {
		*slot = nil
		return nil
	}
	data, err := xml.Marshal(rawSection{
		XMLName: xml.Name{Local: string(p)},
		Block:   c.Block,
		Log:     c.Log,
		Filters: c.Filters,
		Other:   c.Other,
	})
	if err != nil {
		return err
	}
	var raw RawElement
	if err := xml.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Other = append(r.Other, raw)
	*slot = nil
	return nil
}

func (r *Rules) compact() *Rules {
	out := &Rules{Other: r.Other}
	if !r.Activity.empty() {
		out.Activity = r.Activity
	}
	if !r.Broadcast.empty() {
		out.Broadcast = r.Broadcast
	}
	if !r.Service.empty() {
		out.Service = r.Service
	}
	return out
}

func (c *Component) empty() bool {
	return c == nil || (len(c.Filters) == 0 && len(c.Other) == 0)
}

// FilterName is the form IFW matches on: "<package>/<component>".
func FilterName(packageName, componentName string) string {
	return packageName + "/" + componentName
}

// normalizeFilter expands a short class name so "pkg/.Foo" and
// "pkg/pkg.Foo" compare equal, as they do on the device.
func normalizeFilter(name string) string {
	pkg, cls, ok := strings.Cut(name, "/")
	if !ok {
		return name
	}
	return pkg + "/" + domain.ExpandClassName(pkg, cls)
}
