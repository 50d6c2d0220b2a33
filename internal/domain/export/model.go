package export

import (
	"time"

	"github.com/google/uuid"

	"github.com/hisync/hisync/internal/platform/wire"
)

// HIS payload field names. The HIS export documents arrive as loosely-typed
// JSON objects keyed by these names; numeric values may be split-word encoded
// and are always read through the wire package.
const (
	FieldHISID         = "id"
	FieldCode          = "code"
	FieldName          = "name"
	FieldReqRoomID     = "reqRoomId"
	FieldReqDeptID     = "reqDepartmentId"
	FieldReqUserID     = "reqUserId"
	FieldMedTypeID     = "medicineTypeId"
	FieldStockCode     = "stockCode"
	FieldStockName     = "stockName"
	FieldDocumentID    = "documentId"
	FieldExportSlipID  = "exportSlipId"
	FieldMedicineID    = "medicineId"
	FieldMedicineCode  = "medicineCode"
	FieldMedicineName  = "medicineName"
	FieldAmount        = "amount"
	FieldDocumentDate  = "documentDate"
)

// ExportDocument is the parent HIS export document (aggregate level).
// HISID is the upstream identifier and the natural upsert key; ID is local
// and never reused as a business key.
type ExportDocument struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	HISID          int64      `db:"his_id" json:"his_id"`
	WorkingStateID *string    `db:"working_state_id" json:"working_state_id,omitempty"`
	Code           *string    `db:"code" json:"code,omitempty"`
	Name           *string    `db:"name" json:"name,omitempty"`
	ReqRoomID      *int64     `db:"req_room_id" json:"req_room_id,omitempty"`
	ReqDeptID      *int64     `db:"req_department_id" json:"req_department_id,omitempty"`
	ReqUserID      *int64     `db:"req_user_id" json:"req_user_id,omitempty"`
	MedicineTypeID *int64     `db:"medicine_type_id" json:"medicine_type_id,omitempty"`
	DocumentDate   *time.Time `db:"document_date" json:"document_date,omitempty"`
	VersionID      int        `db:"version_id" json:"version_id"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	CreatedBy      *string    `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy      *string    `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// ExportSlip is a child sub-document of an ExportDocument. DocumentHISID
// references the owning parent's HIS id; in the synthesized degenerate case
// it equals the slip's own HISID. DocumentID denormalizes the parent's local
// id for fast joins.
type ExportSlip struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	HISID          int64      `db:"his_id" json:"his_id"`
	DocumentHISID  int64      `db:"document_his_id" json:"document_his_id"`
	DocumentID     *uuid.UUID `db:"document_id" json:"document_id,omitempty"`
	Code           *string    `db:"code" json:"code,omitempty"`
	Name           *string    `db:"name" json:"name,omitempty"`
	ReqRoomID      *int64     `db:"req_room_id" json:"req_room_id,omitempty"`
	ReqDeptID      *int64     `db:"req_department_id" json:"req_department_id,omitempty"`
	ReqUserID      *int64     `db:"req_user_id" json:"req_user_id,omitempty"`
	MedicineTypeID *int64     `db:"medicine_type_id" json:"medicine_type_id,omitempty"`
	StockCode      *string    `db:"stock_code" json:"stock_code,omitempty"`
	StockName      *string    `db:"stock_name" json:"stock_name,omitempty"`
	DocumentDate   *time.Time `db:"document_date" json:"document_date,omitempty"`
	VersionID      int        `db:"version_id" json:"version_id"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	CreatedBy      *string    `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy      *string    `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// MedicineLine is a medicine line item under an ExportSlip. The two export
// field pairs are irreversible: once ExportedBy/ExportedAt is set the pair is
// immutable, and the actual pair may only be set after the export pair. Both
// are mutated exclusively by the batch transition, never by the sync upsert.
type MedicineLine struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	HISID          int64      `db:"his_id" json:"his_id"`
	SlipHISID      int64      `db:"slip_his_id" json:"slip_his_id"`
	SlipID         *uuid.UUID `db:"slip_id" json:"slip_id,omitempty"`
	MedicineID     *int64     `db:"medicine_id" json:"medicine_id,omitempty"`
	MedicineCode   *string    `db:"medicine_code" json:"medicine_code,omitempty"`
	MedicineName   *string    `db:"medicine_name" json:"medicine_name,omitempty"`
	Amount         float64    `db:"amount" json:"amount"`
	ReqRoomID      *int64     `db:"req_room_id" json:"req_room_id,omitempty"`
	ReqDeptID      *int64     `db:"req_department_id" json:"req_department_id,omitempty"`
	ReqUserID      *int64     `db:"req_user_id" json:"req_user_id,omitempty"`
	MedicineTypeID *int64     `db:"medicine_type_id" json:"medicine_type_id,omitempty"`
	StockCode      *string    `db:"stock_code" json:"stock_code,omitempty"`
	StockName      *string    `db:"stock_name" json:"stock_name,omitempty"`
	DocumentHISID  *int64     `db:"document_his_id" json:"document_his_id,omitempty"`

	ExportAmount       *float64   `db:"export_amount" json:"export_amount,omitempty"`
	ExportedBy         *string    `db:"exported_by" json:"exported_by,omitempty"`
	ExportedAt         *time.Time `db:"exported_at" json:"exported_at,omitempty"`
	ActualExportAmount *float64   `db:"actual_export_amount" json:"actual_export_amount,omitempty"`
	ActualExportedBy   *string    `db:"actual_exported_by" json:"actual_exported_by,omitempty"`
	ActualExportedAt   *time.Time `db:"actual_exported_at" json:"actual_exported_at,omitempty"`

	VersionID int       `db:"version_id" json:"version_id"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedBy *string   `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy *string   `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Exported reports whether the line has completed the export transition.
func (m *MedicineLine) Exported() bool {
	return m.ExportedBy != nil || m.ExportedAt != nil
}

// ActuallyExported reports whether the line has completed the actual-export
// transition.
func (m *MedicineLine) ActuallyExported() bool {
	return m.ActualExportedBy != nil || m.ActualExportedAt != nil
}

// applyDocumentPayload merges a HIS payload into a document. Keys absent
// from the payload leave the field unchanged; keys present as null clear it.
// WorkingStateID is deliberately not read from the payload: it is set only
// from the explicit request parameter.
func applyDocumentPayload(d *ExportDocument, p wire.Payload) {
	if p.Has(FieldCode) {
		d.Code = p.String(FieldCode)
	}
	if p.Has(FieldName) {
		d.Name = p.String(FieldName)
	}
	if p.Has(FieldReqRoomID) {
		d.ReqRoomID = p.Int64(FieldReqRoomID)
	}
	if p.Has(FieldReqDeptID) {
		d.ReqDeptID = p.Int64(FieldReqDeptID)
	}
	if p.Has(FieldReqUserID) {
		d.ReqUserID = p.Int64(FieldReqUserID)
	}
	if p.Has(FieldMedTypeID) {
		d.MedicineTypeID = p.Int64(FieldMedTypeID)
	}
	if p.Has(FieldDocumentDate) {
		d.DocumentDate = p.Time(FieldDocumentDate)
	}
}

// applySlipPayload merges a HIS payload into a slip. Ownership fields
// (DocumentHISID, DocumentID) are not read from the payload; the
// orchestrator forces them from the resolved parent.
func applySlipPayload(s *ExportSlip, p wire.Payload) {
	if p.Has(FieldCode) {
		s.Code = p.String(FieldCode)
	}
	if p.Has(FieldName) {
		s.Name = p.String(FieldName)
	}
	if p.Has(FieldReqRoomID) {
		s.ReqRoomID = p.Int64(FieldReqRoomID)
	}
	if p.Has(FieldReqDeptID) {
		s.ReqDeptID = p.Int64(FieldReqDeptID)
	}
	if p.Has(FieldReqUserID) {
		s.ReqUserID = p.Int64(FieldReqUserID)
	}
	if p.Has(FieldMedTypeID) {
		s.MedicineTypeID = p.Int64(FieldMedTypeID)
	}
	if p.Has(FieldStockCode) {
		s.StockCode = p.String(FieldStockCode)
	}
	if p.Has(FieldStockName) {
		s.StockName = p.String(FieldStockName)
	}
	if p.Has(FieldDocumentDate) {
		s.DocumentDate = p.Time(FieldDocumentDate)
	}
}

// applyLinePayload merges a HIS payload into a medicine line. Ownership
// fields (SlipHISID, SlipID) are forced by the orchestrator, and the export
// state pairs are never touched here.
func applyLinePayload(m *MedicineLine, p wire.Payload) {
	if p.Has(FieldMedicineID) {
		m.MedicineID = p.Int64(FieldMedicineID)
	}
	if p.Has(FieldMedicineCode) {
		m.MedicineCode = p.String(FieldMedicineCode)
	}
	if p.Has(FieldMedicineName) {
		m.MedicineName = p.String(FieldMedicineName)
	}
	if p.Has(FieldAmount) {
		if f := p.Float(FieldAmount); f != nil {
			m.Amount = *f
		}
	}
	if p.Has(FieldReqRoomID) {
		m.ReqRoomID = p.Int64(FieldReqRoomID)
	}
	if p.Has(FieldReqDeptID) {
		m.ReqDeptID = p.Int64(FieldReqDeptID)
	}
	if p.Has(FieldReqUserID) {
		m.ReqUserID = p.Int64(FieldReqUserID)
	}
	if p.Has(FieldMedTypeID) {
		m.MedicineTypeID = p.Int64(FieldMedTypeID)
	}
	if p.Has(FieldStockCode) {
		m.StockCode = p.String(FieldStockCode)
	}
	if p.Has(FieldStockName) {
		m.StockName = p.String(FieldStockName)
	}
	if p.Has(FieldDocumentID) {
		m.DocumentHISID = p.Int64(FieldDocumentID)
	}
}

// inheritableNumericFields and inheritableStringFields are the fixed set of
// line fields inherited from the owning slip when the line's own payload
// leaves them empty. Numeric zero counts as present and is never overridden.
var inheritableNumericFields = []string{
	FieldReqRoomID, FieldReqDeptID, FieldReqUserID, FieldMedTypeID, FieldDocumentID,
}

var inheritableStringFields = []string{
	FieldStockCode, FieldStockName,
}

// enrichLinePayload resolves the inheritable fields of a line payload
// against its owning slip's raw payload. The result is a copy: for each
// inheritable field the line's own value wins when present, then the slip's,
// otherwise the key is written as explicit null so the upsert clears it.
func enrichLinePayload(line, slip wire.Payload) wire.Payload {
	out := make(wire.Payload, len(line)+len(inheritableNumericFields)+len(inheritableStringFields))
	for k, v := range line {
		out[k] = v
	}
	for _, k := range inheritableNumericFields {
		if n := line.Int64(k); n != nil {
			out[k] = *n
			continue
		}
		if n := slip.Int64(k); n != nil {
			out[k] = *n
			continue
		}
		out[k] = nil
	}
	for _, k := range inheritableStringFields {
		if s := line.String(k); s != nil && *s != "" {
			out[k] = *s
			continue
		}
		if s := slip.String(k); s != nil && *s != "" {
			out[k] = *s
			continue
		}
		out[k] = nil
	}
	return out
}
