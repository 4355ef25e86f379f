package die

import "fmt"

// Form is a DWARF attribute encoding (DW_FORM_*).
type Form uint16

// DWARF 4 and 5 forms, plus the GNU alternate-file extensions.
const (
	FormAddr          Form = 0x01
	FormBlock2        Form = 0x03
	FormBlock4        Form = 0x04
	FormData2         Form = 0x05
	FormData4         Form = 0x06
	FormData8         Form = 0x07
	FormString        Form = 0x08
	FormBlock         Form = 0x09
	FormBlock1        Form = 0x0a
	FormData1         Form = 0x0b
	FormFlag          Form = 0x0c
	FormSdata         Form = 0x0d
	FormStrp          Form = 0x0e
	FormUdata         Form = 0x0f
	FormRefAddr       Form = 0x10
	FormRef1          Form = 0x11
	FormRef2          Form = 0x12
	FormRef4          Form = 0x13
	FormRef8          Form = 0x14
	FormRefUdata      Form = 0x15
	FormIndirect      Form = 0x16
	FormSecOffset     Form = 0x17
	FormExprloc       Form = 0x18
	FormFlagPresent   Form = 0x19
	FormStrx          Form = 0x1a
	FormRefSig8       Form = 0x20
	FormLineStrp      Form = 0x1f
	FormImplicitConst Form = 0x21
	FormLoclistx      Form = 0x22
	FormRnglistx      Form = 0x23
	FormGNURefAlt     Form = 0x1f20
	FormGNUStrpAlt    Form = 0x1f21
)

var formNames = map[Form]string{
	FormAddr:          "DW_FORM_addr",
	FormBlock2:        "DW_FORM_block2",
	FormBlock4:        "DW_FORM_block4",
	FormData2:         "DW_FORM_data2",
	FormData4:         "DW_FORM_data4",
	FormData8:         "DW_FORM_data8",
	FormString:        "DW_FORM_string",
	FormBlock:         "DW_FORM_block",
	FormBlock1:        "DW_FORM_block1",
	FormData1:         "DW_FORM_data1",
	FormFlag:          "DW_FORM_flag",
	FormSdata:         "DW_FORM_sdata",
	FormStrp:          "DW_FORM_strp",
	FormUdata:         "DW_FORM_udata",
	FormRefAddr:       "DW_FORM_ref_addr",
	FormRef1:          "DW_FORM_ref1",
	FormRef2:          "DW_FORM_ref2",
	FormRef4:          "DW_FORM_ref4",
	FormRef8:          "DW_FORM_ref8",
	FormRefUdata:      "DW_FORM_ref_udata",
	FormIndirect:      "DW_FORM_indirect",
	FormSecOffset:     "DW_FORM_sec_offset",
	FormExprloc:       "DW_FORM_exprloc",
	FormFlagPresent:   "DW_FORM_flag_present",
	FormStrx:          "DW_FORM_strx",
	FormRefSig8:       "DW_FORM_ref_sig8",
	FormLineStrp:      "DW_FORM_line_strp",
	FormImplicitConst: "DW_FORM_implicit_const",
	FormLoclistx:      "DW_FORM_loclistx",
	FormRnglistx:      "DW_FORM_rnglistx",
	FormGNURefAlt:     "DW_FORM_GNU_ref_alt",
	FormGNUStrpAlt:    "DW_FORM_GNU_strp_alt",
}

func (f Form) String() string {
	if s, ok := formNames[f]; ok {
		return s
	}
	return fmt.Sprintf("DW_FORM_0x%x", uint16(f))
}

// ParseForm maps a DW_FORM_* name, with or without its prefix, to a Form.
func ParseForm(name string) (Form, bool) {
	for f, s := range formNames {
		if s == name || s == "DW_FORM_"+name {
			return f, true
		}
	}
	return 0, false
}
