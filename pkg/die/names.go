package die

import (
	"debug/dwarf"
	"fmt"
	"strings"
	"sync"
)

var (
	namesOnce sync.Once
	tagByName map[string]dwarf.Tag
	attrByKey map[string]dwarf.Attr
)

// Tag and attribute codes worth indexing: the DWARF 5 standard ranges and
// the GNU/LLVM vendor ranges that toolchains commonly emit.
func loadNames() {
	tagByName = make(map[string]dwarf.Tag)
	for _, r := range [][2]uint32{{0x01, 0x4c}, {0x4080, 0x4110}} {
		for v := r[0]; v < r[1]; v++ {
			t := dwarf.Tag(v)
			if s := t.String(); !strings.HasPrefix(s, "Tag(") {
				tagByName[normalize(s)] = t
			}
		}
	}

	attrByKey = make(map[string]dwarf.Attr)
	for _, r := range [][2]uint32{{0x01, 0x90}, {0x2000, 0x2140}} {
		for v := r[0]; v < r[1]; v++ {
			a := dwarf.Attr(v)
			if s := a.String(); !strings.HasPrefix(s, "Attr(") {
				attrByKey[normalize(s)] = a
			}
		}
	}
}

func normalize(s string) string {
	s = strings.ToLower(s)
	for _, prefix := range []string{"dw_tag_", "dw_at_", "tag", "attr"} {
		if strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	return strings.ReplaceAll(s, "_", "")
}

// ParseTag accepts "structure_type", "DW_TAG_structure_type", "StructType"
// and the short forms "struct", "union", "class" and "enum".
func ParseTag(name string) (dwarf.Tag, error) {
	namesOnce.Do(loadNames)

	key := normalize(name)
	if t, ok := tagByName[key]; ok {
		return t, nil
	}
	switch key {
	case "struct", "structure", "structuretype":
		return dwarf.TagStructType, nil
	case "enum", "enumeration":
		return dwarf.TagEnumerationType, nil
	}
	if t, ok := tagByName[key+"type"]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("unknown DWARF tag %q", name)
}

// ParseAttr accepts "name", "DW_AT_name" or "Name".
func ParseAttr(name string) (dwarf.Attr, error) {
	namesOnce.Do(loadNames)

	key := normalize(name)
	if a, ok := attrByKey[key]; ok {
		return a, nil
	}
	if key == "datamemberlocation" {
		return dwarf.AttrDataMemberLoc, nil
	}
	return 0, fmt.Errorf("unknown DWARF attribute %q", name)
}
