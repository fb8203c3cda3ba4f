// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package asdu

import (
	"fmt"
	"time"
)

// QualifierOfInterrogation is the QOI of C_IC_NA_1.
type QualifierOfInterrogation byte

const (
	QOIUnused  QualifierOfInterrogation = 0
	QOIStation QualifierOfInterrogation = 20
	QOIGroup1  QualifierOfInterrogation = 21
	QOIGroup16 QualifierOfInterrogation = 36
)

// QOCQual is the qualifier part (QU) of a command qualifier.
type QOCQual byte

const (
	QOCNoAdditionalDefinition QOCQual = iota
	QOCShortPulseDuration
	QOCLongPulseDuration
	QOCPersistentOutput
)

// QualifierOfCommand is the QOC of single and double commands.
type QualifierOfCommand struct {
	Qual     QOCQual
	InSelect bool
}

// Value encodes the qualifier into bits 2-7 of the command octet.
func (sf QualifierOfCommand) Value() byte {
	v := (byte(sf.Qual) & 0x1f) << 2
	if sf.InSelect {
		v |= 0x80
	}
	return v
}

// CommandObject is an information object sent in control direction.
type CommandObject interface {
	// TypeID is the type identification of the carrying ASDU.
	TypeID() TypeID
	// AppendTo appends the object, address included, to a.
	AppendTo(a *ASDU) error
}

// SingleCommandInfo is the information object of C_SC_NA_1.
type SingleCommandInfo struct {
	Ioa   InfoObjAddr
	Value bool
	Qoc   QualifierOfCommand
}

// TypeID implements CommandObject.
func (sf SingleCommandInfo) TypeID() TypeID { return C_SC_NA_1 }

// AppendTo implements CommandObject.
func (sf SingleCommandInfo) AppendTo(a *ASDU) error {
	if err := a.AppendInfoObjAddr(sf.Ioa); err != nil {
		return err
	}
	sco := sf.Qoc.Value()
	if sf.Value {
		sco |= 0x01
	}
	a.AppendBytes(sco)
	return nil
}

// DoubleCommandInfo is the information object of C_DC_NA_1.
// Value 1 is OFF and 2 is ON.
type DoubleCommandInfo struct {
	Ioa   InfoObjAddr
	Value byte
	Qoc   QualifierOfCommand
}

// TypeID implements CommandObject.
func (sf DoubleCommandInfo) TypeID() TypeID { return C_DC_NA_1 }

// AppendTo implements CommandObject.
func (sf DoubleCommandInfo) AppendTo(a *ASDU) error {
	if sf.Value != 1 && sf.Value != 2 {
		return fmt.Errorf("%w: double command state %d", ErrParam, sf.Value)
	}
	if err := a.AppendInfoObjAddr(sf.Ioa); err != nil {
		return err
	}
	a.AppendBytes(sf.Qoc.Value() | sf.Value)
	return nil
}

func checkCommandCause(coa CauseOfTransmission) error {
	if coa.Cause != Activation && coa.Cause != Deactivation {
		return fmt.Errorf("%w: %s", ErrCmdCause, coa.Cause)
	}
	return nil
}

// InterrogationCmd builds a C_IC_NA_1 ASDU.
func InterrogationCmd(p *Params, coa CauseOfTransmission, ca CommonAddr, qoi QualifierOfInterrogation) (*ASDU, error) {
	if err := checkCommandCause(coa); err != nil {
		return nil, err
	}
	a := NewASDU(p, Identifier{
		Type:       C_IC_NA_1,
		Variable:   VariableStruct{Number: 1},
		Coa:        coa,
		CommonAddr: ca,
	})
	if err := a.AppendInfoObjAddr(InfoObjAddrIrrelevant); err != nil {
		return nil, err
	}
	a.AppendBytes(byte(qoi))
	return a, nil
}

// ProcessCmd builds a single-object ASDU carrying cmd.
func ProcessCmd(p *Params, coa CauseOfTransmission, ca CommonAddr, cmd CommandObject) (*ASDU, error) {
	if err := checkCommandCause(coa); err != nil {
		return nil, err
	}
	a := NewASDU(p, Identifier{
		Type:       cmd.TypeID(),
		Variable:   VariableStruct{Number: 1},
		Coa:        coa,
		CommonAddr: ca,
	})
	if err := cmd.AppendTo(a); err != nil {
		return nil, err
	}
	return a, nil
}

// ClockSynchronizationCmd builds a C_CS_NA_1 ASDU with cause Activation.
func ClockSynchronizationCmd(p *Params, ca CommonAddr, t time.Time) (*ASDU, error) {
	a := NewASDU(p, Identifier{
		Type:       C_CS_NA_1,
		Variable:   VariableStruct{Number: 1},
		Coa:        CauseOfTransmission{Cause: Activation},
		CommonAddr: ca,
	})
	if err := a.AppendInfoObjAddr(InfoObjAddrIrrelevant); err != nil {
		return nil, err
	}
	a.AppendBytes(CP56Time2a(t, p.location())...)
	return a, nil
}

// CommandInfo decodes the single command object of a C_SC_NA_1 ASDU.
func (sf *ASDU) CommandInfo() (SingleCommandInfo, error) {
	if sf.Type != C_SC_NA_1 {
		return SingleCommandInfo{}, ErrTypeIdentifier
	}
	ioa, err := sf.decodeInfoObjAddr(sf.infoObj)
	if err != nil {
		return SingleCommandInfo{}, err
	}
	if len(sf.infoObj) < sf.InfoObjAddrSize+1 {
		return SingleCommandInfo{}, ErrInfoObjIndexFit
	}
	sco := sf.infoObj[sf.InfoObjAddrSize]
	return SingleCommandInfo{
		Ioa:   ioa,
		Value: sco&0x01 == 0x01,
		Qoc:   QualifierOfCommand{Qual: QOCQual((sco >> 2) & 0x1f), InSelect: sco&0x80 == 0x80},
	}, nil
}

// InterrogationQualifier decodes the QOI of a C_IC_NA_1 ASDU.
func (sf *ASDU) InterrogationQualifier() (QualifierOfInterrogation, error) {
	if sf.Type != C_IC_NA_1 {
		return 0, ErrTypeIdentifier
	}
	if len(sf.infoObj) < sf.InfoObjAddrSize+1 {
		return 0, ErrInfoObjIndexFit
	}
	return QualifierOfInterrogation(sf.infoObj[sf.InfoObjAddrSize]), nil
}

// ClockSyncTime decodes the time tag of a C_CS_NA_1 ASDU.
func (sf *ASDU) ClockSyncTime() (time.Time, error) {
	if sf.Type != C_CS_NA_1 {
		return time.Time{}, ErrTypeIdentifier
	}
	if len(sf.infoObj) < sf.InfoObjAddrSize+7 {
		return time.Time{}, ErrInfoObjIndexFit
	}
	t, ok := ParseCP56Time2a(sf.infoObj[sf.InfoObjAddrSize:], sf.location())
	if !ok {
		return time.Time{}, fmt.Errorf("%w: invalid time tag", ErrParam)
	}
	return t, nil
}
