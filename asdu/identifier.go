// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package asdu

import (
	"fmt"
	"strconv"
)

// TypeID is the ASDU type identification.
type TypeID uint8

// Process information in monitor direction.
const (
	_         TypeID = iota // 0: not used
	M_SP_NA_1               // 1: single-point information
	M_SP_TA_1               // 2: single-point information with CP24Time2a
	M_DP_NA_1               // 3: double-point information
	M_DP_TA_1               // 4: double-point information with CP24Time2a
	M_ST_NA_1               // 5: step position information
	M_ST_TA_1               // 6: step position information with CP24Time2a
	M_BO_NA_1               // 7: bitstring of 32 bit
	M_BO_TA_1               // 8: bitstring of 32 bit with CP24Time2a
	M_ME_NA_1               // 9: measured value, normalized value
	M_ME_TA_1               // 10: measured value, normalized value with CP24Time2a
	M_ME_NB_1               // 11: measured value, scaled value
	M_ME_TB_1               // 12: measured value, scaled value with CP24Time2a
	M_ME_NC_1               // 13: measured value, short floating point number
	M_ME_TC_1               // 14: measured value, short floating point number with CP24Time2a
	M_IT_NA_1               // 15: integrated totals
	M_IT_TA_1               // 16: integrated totals with CP24Time2a
	M_EP_TA_1               // 17: event of protection equipment with CP24Time2a
	M_EP_TB_1               // 18: packed start events of protection equipment with CP24Time2a
	M_EP_TC_1               // 19: packed output circuit information of protection equipment with CP24Time2a
	M_PS_NA_1               // 20: packed single-point information with status change detection
	M_ME_ND_1               // 21: measured value, normalized value without quality descriptor
)

const (
	M_SP_TB_1 TypeID = iota + 30 // 30: single-point information with CP56Time2a
	M_DP_TB_1                    // 31: double-point information with CP56Time2a
	M_ST_TB_1                    // 32: step position information with CP56Time2a
	M_BO_TB_1                    // 33: bitstring of 32 bit with CP56Time2a
	M_ME_TD_1                    // 34: measured value, normalized value with CP56Time2a
	M_ME_TE_1                    // 35: measured value, scaled value with CP56Time2a
	M_ME_TF_1                    // 36: measured value, short floating point number with CP56Time2a
	M_IT_TB_1                    // 37: integrated totals with CP56Time2a
	M_EP_TD_1                    // 38: event of protection equipment with CP56Time2a
	M_EP_TE_1                    // 39: packed start events of protection equipment with CP56Time2a
	M_EP_TF_1                    // 40: packed output circuit information of protection equipment with CP56Time2a
)

// Process information in control direction.
const (
	C_SC_NA_1 TypeID = iota + 45 // 45: single command
	C_DC_NA_1                    // 46: double command
	C_RC_NA_1                    // 47: regulating step command
	C_SE_NA_1                    // 48: set-point command, normalized value
	C_SE_NB_1                    // 49: set-point command, scaled value
	C_SE_NC_1                    // 50: set-point command, short floating point number
	C_BO_NA_1                    // 51: bitstring of 32 bit
)

const (
	C_SC_TA_1 TypeID = iota + 58 // 58: single command with CP56Time2a
	C_DC_TA_1                    // 59: double command with CP56Time2a
	C_RC_TA_1                    // 60: regulating step command with CP56Time2a
	C_SE_TA_1                    // 61: set-point command, normalized value with CP56Time2a
	C_SE_TB_1                    // 62: set-point command, scaled value with CP56Time2a
	C_SE_TC_1                    // 63: set-point command, short floating point number with CP56Time2a
	C_BO_TA_1                    // 64: bitstring of 32 bit with CP56Time2a
)

// System information in monitor direction.
const (
	M_EI_NA_1 TypeID = 70 // end of initialization
)

// System information in control direction.
const (
	C_IC_NA_1 TypeID = iota + 100 // 100: interrogation command
	C_CI_NA_1                     // 101: counter interrogation command
	C_RD_NA_1                     // 102: read command
	C_CS_NA_1                     // 103: clock synchronization command
	C_TS_NA_1                     // 104: test command
	C_RP_NA_1                     // 105: reset process command
	C_CD_NA_1                     // 106: delay acquisition command
)

var typeNames = map[TypeID]string{
	M_SP_NA_1: "M_SP_NA_1", M_SP_TA_1: "M_SP_TA_1", M_DP_NA_1: "M_DP_NA_1", M_DP_TA_1: "M_DP_TA_1",
	M_ST_NA_1: "M_ST_NA_1", M_ST_TA_1: "M_ST_TA_1", M_BO_NA_1: "M_BO_NA_1", M_BO_TA_1: "M_BO_TA_1",
	M_ME_NA_1: "M_ME_NA_1", M_ME_TA_1: "M_ME_TA_1", M_ME_NB_1: "M_ME_NB_1", M_ME_TB_1: "M_ME_TB_1",
	M_ME_NC_1: "M_ME_NC_1", M_ME_TC_1: "M_ME_TC_1", M_IT_NA_1: "M_IT_NA_1", M_IT_TA_1: "M_IT_TA_1",
	M_EP_TA_1: "M_EP_TA_1", M_EP_TB_1: "M_EP_TB_1", M_EP_TC_1: "M_EP_TC_1", M_PS_NA_1: "M_PS_NA_1",
	M_ME_ND_1: "M_ME_ND_1",
	M_SP_TB_1: "M_SP_TB_1", M_DP_TB_1: "M_DP_TB_1", M_ST_TB_1: "M_ST_TB_1", M_BO_TB_1: "M_BO_TB_1",
	M_ME_TD_1: "M_ME_TD_1", M_ME_TE_1: "M_ME_TE_1", M_ME_TF_1: "M_ME_TF_1", M_IT_TB_1: "M_IT_TB_1",
	M_EP_TD_1: "M_EP_TD_1", M_EP_TE_1: "M_EP_TE_1", M_EP_TF_1: "M_EP_TF_1",
	C_SC_NA_1: "C_SC_NA_1", C_DC_NA_1: "C_DC_NA_1", C_RC_NA_1: "C_RC_NA_1", C_SE_NA_1: "C_SE_NA_1",
	C_SE_NB_1: "C_SE_NB_1", C_SE_NC_1: "C_SE_NC_1", C_BO_NA_1: "C_BO_NA_1",
	C_SC_TA_1: "C_SC_TA_1", C_DC_TA_1: "C_DC_TA_1", C_RC_TA_1: "C_RC_TA_1", C_SE_TA_1: "C_SE_TA_1",
	C_SE_TB_1: "C_SE_TB_1", C_SE_TC_1: "C_SE_TC_1", C_BO_TA_1: "C_BO_TA_1",
	M_EI_NA_1: "M_EI_NA_1",
	C_IC_NA_1: "C_IC_NA_1", C_CI_NA_1: "C_CI_NA_1", C_RD_NA_1: "C_RD_NA_1", C_CS_NA_1: "C_CS_NA_1",
	C_TS_NA_1: "C_TS_NA_1", C_RP_NA_1: "C_RP_NA_1", C_CD_NA_1: "C_CD_NA_1",
}

// String returns the standard mnemonic, or "TID<n>" for unknown values.
func (sf TypeID) String() string {
	if s, ok := typeNames[sf]; ok {
		return s
	}
	return "TID<" + strconv.Itoa(int(sf)) + ">"
}

// VariableStruct is the variable structure qualifier.
// Number is the count of information objects or elements (0-127).
type VariableStruct struct {
	Number     byte
	IsSequence bool
}

// ParseVariableStruct decodes the variable structure qualifier byte.
func ParseVariableStruct(b byte) VariableStruct {
	return VariableStruct{
		Number:     b & 0x7f,
		IsSequence: (b & 0x80) == 0x80,
	}
}

// Value encodes the variable structure qualifier.
func (sf VariableStruct) Value() byte {
	if sf.IsSequence {
		return sf.Number | 0x80
	}
	return sf.Number & 0x7f
}

func (sf VariableStruct) String() string {
	if sf.IsSequence {
		return fmt.Sprintf("VSQ<sq,%d>", sf.Number)
	}
	return fmt.Sprintf("VSQ<%d>", sf.Number)
}

// Cause is the cause of transmission, bits 1-6.
type Cause byte

// Cause of transmission values.
const (
	Unused                  Cause = 0
	Periodic                Cause = 1
	Background              Cause = 2
	Spontaneous             Cause = 3
	Initialized             Cause = 4
	Request                 Cause = 5
	Activation              Cause = 6
	ActivationCon           Cause = 7
	Deactivation            Cause = 8
	DeactivationCon         Cause = 9
	ActivationTerm          Cause = 10
	ReturnInfoRemote        Cause = 11
	ReturnInfoLocal         Cause = 12
	FileTransfer            Cause = 13
	InterrogatedByStation   Cause = 20
	InterrogatedByGroup1    Cause = 21
	InterrogatedByGroup16   Cause = 36
	RequestByGeneralCounter Cause = 37
	RequestByGroup1Counter  Cause = 38
	RequestByGroup4Counter  Cause = 41
	UnknownTypeID           Cause = 44
	UnknownCOT              Cause = 45
	UnknownCA               Cause = 46
	UnknownIOA              Cause = 47
)

var causeNames = map[Cause]string{
	Unused: "Unused", Periodic: "Periodic", Background: "Background", Spontaneous: "Spontaneous",
	Initialized: "Initialized", Request: "Request", Activation: "Activation", ActivationCon: "ActivationCon",
	Deactivation: "Deactivation", DeactivationCon: "DeactivationCon", ActivationTerm: "ActivationTerm",
	ReturnInfoRemote: "ReturnInfoRemote", ReturnInfoLocal: "ReturnInfoLocal", FileTransfer: "FileTransfer",
	InterrogatedByStation: "InterrogatedByStation", RequestByGeneralCounter: "RequestByGeneralCounter",
	UnknownTypeID: "UnknownTypeID", UnknownCOT: "UnknownCOT", UnknownCA: "UnknownCA", UnknownIOA: "UnknownIOA",
}

func (sf Cause) String() string {
	if s, ok := causeNames[sf]; ok {
		return s
	}
	switch {
	case sf >= InterrogatedByGroup1 && sf <= InterrogatedByGroup16:
		return "InterrogatedByGroup" + strconv.Itoa(int(sf-InterrogatedByGroup1)+1)
	case sf >= RequestByGroup1Counter && sf <= RequestByGroup4Counter:
		return "RequestByGroup" + strconv.Itoa(int(sf-RequestByGroup1Counter)+1) + "Counter"
	}
	return "COT<" + strconv.Itoa(int(sf)) + ">"
}

// CauseOfTransmission is the cause of transmission field with its T and P/N flags.
type CauseOfTransmission struct {
	IsTest     bool
	IsNegative bool
	Cause      Cause
}

// ParseCauseOfTransmission decodes the cause of transmission byte.
func ParseCauseOfTransmission(b byte) CauseOfTransmission {
	return CauseOfTransmission{
		IsNegative: (b & 0x40) == 0x40,
		IsTest:     (b & 0x80) == 0x80,
		Cause:      Cause(b & 0x3f),
	}
}

// Value encodes the cause of transmission byte.
func (sf CauseOfTransmission) Value() byte {
	v := byte(sf.Cause) & 0x3f
	if sf.IsNegative {
		v |= 0x40
	}
	if sf.IsTest {
		v |= 0x80
	}
	return v
}

func (sf CauseOfTransmission) String() string {
	s := sf.Cause.String()
	if sf.IsNegative {
		s += ",neg"
	}
	if sf.IsTest {
		s += ",test"
	}
	return s
}

// OriginAddr is the originator address, present when the cause field is two octets.
type OriginAddr byte

// CommonAddr is the station (common) address of the ASDU.
type CommonAddr uint16

const (
	// InvalidCommonAddr is not used by any station.
	InvalidCommonAddr CommonAddr = 0
	// GlobalCommonAddr is the broadcast address; encoded as 255 in one octet.
	GlobalCommonAddr CommonAddr = 0xffff
)

// InfoObjAddr is the information object address (up to three octets).
type InfoObjAddr uint32

const (
	// InfoObjAddrIrrelevant is used by station-wide commands.
	InfoObjAddrIrrelevant InfoObjAddr = 0
	// InfoObjAddrMax is the largest three-octet address.
	InfoObjAddrMax InfoObjAddr = 0xffffff
)

// Identifier is the data unit identifier block of an ASDU.
type Identifier struct {
	Type       TypeID
	Variable   VariableStruct
	Coa        CauseOfTransmission
	OrigAddr   OriginAddr
	CommonAddr CommonAddr
}

func (id Identifier) String() string {
	if id.OrigAddr == 0 {
		return fmt.Sprintf("TID<%s> %s COT<%s> CA<%d>", id.Type, id.Variable, id.Coa, id.CommonAddr)
	}
	return fmt.Sprintf("TID<%s> %s COT<%s> OA<%d> CA<%d>", id.Type, id.Variable, id.Coa, id.OrigAddr, id.CommonAddr)
}
