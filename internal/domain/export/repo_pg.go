package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hisync/hisync/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// ---- ExportDocument Repo ----

type exportDocumentRepoPG struct{ pool *pgxpool.Pool }

func NewExportDocumentRepoPG(pool *pgxpool.Pool) ExportDocumentRepository {
	return &exportDocumentRepoPG{pool: pool}
}

func (r *exportDocumentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const exportDocumentCols = `id, his_id, working_state_id, code, name,
	req_room_id, req_department_id, req_user_id, medicine_type_id, document_date,
	version_id, is_active, created_by, updated_by, created_at, updated_at`

func scanExportDocument(row pgx.Row) (*ExportDocument, error) {
	var d ExportDocument
	err := row.Scan(&d.ID, &d.HISID, &d.WorkingStateID, &d.Code, &d.Name,
		&d.ReqRoomID, &d.ReqDeptID, &d.ReqUserID, &d.MedicineTypeID, &d.DocumentDate,
		&d.VersionID, &d.IsActive, &d.CreatedBy, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *exportDocumentRepoPG) Create(ctx context.Context, d *ExportDocument) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	// Every column is written explicitly; the store is not trusted to apply
	// defaults on generated-key-less inserts.
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO export_document (id, his_id, working_state_id, code, name,
			req_room_id, req_department_id, req_user_id, medicine_type_id, document_date,
			version_id, is_active, created_by, updated_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		d.ID, d.HISID, d.WorkingStateID, d.Code, d.Name,
		d.ReqRoomID, d.ReqDeptID, d.ReqUserID, d.MedicineTypeID, d.DocumentDate,
		d.VersionID, d.IsActive, d.CreatedBy, d.UpdatedBy, d.CreatedAt, d.UpdatedAt)
	return err
}

// Update writes only against the version the caller read. A row a
// concurrent writer has already moved past that version matches nothing
// and surfaces as ErrConflict instead of a silent lost update.
func (r *exportDocumentRepoPG) Update(ctx context.Context, d *ExportDocument) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE export_document SET working_state_id=$2, code=$3, name=$4,
			req_room_id=$5, req_department_id=$6, req_user_id=$7,
			medicine_type_id=$8, document_date=$9,
			version_id=$10, is_active=$11, updated_by=$12, updated_at=$13
		WHERE his_id = $1 AND version_id = $14`,
		d.HISID, d.WorkingStateID, d.Code, d.Name,
		d.ReqRoomID, d.ReqDeptID, d.ReqUserID,
		d.MedicineTypeID, d.DocumentDate,
		d.VersionID, d.IsActive, d.UpdatedBy, d.UpdatedAt,
		d.VersionID-1)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("export document %d at version %d: %w", d.HISID, d.VersionID-1, ErrConflict)
	}
	return nil
}

func (r *exportDocumentRepoPG) GetByHISID(ctx context.Context, hisID int64) (*ExportDocument, error) {
	d, err := scanExportDocument(r.conn(ctx).QueryRow(ctx,
		`SELECT `+exportDocumentCols+` FROM export_document WHERE his_id = $1`, hisID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("export document %d: %w", hisID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *exportDocumentRepoPG) UpdateWorkingState(ctx context.Context, hisID int64, stateID, actor string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE export_document
		SET working_state_id=$2, version_id=version_id+1, updated_by=$3, updated_at=NOW()
		WHERE his_id = $1`,
		hisID, stateID, actor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("export document %d: %w", hisID, ErrNotFound)
	}
	return nil
}

// ---- ExportSlip Repo ----

type exportSlipRepoPG struct{ pool *pgxpool.Pool }

func NewExportSlipRepoPG(pool *pgxpool.Pool) ExportSlipRepository {
	return &exportSlipRepoPG{pool: pool}
}

func (r *exportSlipRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const exportSlipCols = `id, his_id, document_his_id, document_id, code, name,
	req_room_id, req_department_id, req_user_id, medicine_type_id,
	stock_code, stock_name, document_date,
	version_id, is_active, created_by, updated_by, created_at, updated_at`

func scanExportSlip(row pgx.Row) (*ExportSlip, error) {
	var s ExportSlip
	err := row.Scan(&s.ID, &s.HISID, &s.DocumentHISID, &s.DocumentID, &s.Code, &s.Name,
		&s.ReqRoomID, &s.ReqDeptID, &s.ReqUserID, &s.MedicineTypeID,
		&s.StockCode, &s.StockName, &s.DocumentDate,
		&s.VersionID, &s.IsActive, &s.CreatedBy, &s.UpdatedBy, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *exportSlipRepoPG) Create(ctx context.Context, s *ExportSlip) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO export_slip (id, his_id, document_his_id, document_id, code, name,
			req_room_id, req_department_id, req_user_id, medicine_type_id,
			stock_code, stock_name, document_date,
			version_id, is_active, created_by, updated_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		s.ID, s.HISID, s.DocumentHISID, s.DocumentID, s.Code, s.Name,
		s.ReqRoomID, s.ReqDeptID, s.ReqUserID, s.MedicineTypeID,
		s.StockCode, s.StockName, s.DocumentDate,
		s.VersionID, s.IsActive, s.CreatedBy, s.UpdatedBy, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *exportSlipRepoPG) Update(ctx context.Context, s *ExportSlip) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE export_slip SET document_his_id=$2, document_id=$3, code=$4, name=$5,
			req_room_id=$6, req_department_id=$7, req_user_id=$8, medicine_type_id=$9,
			stock_code=$10, stock_name=$11, document_date=$12,
			version_id=$13, is_active=$14, updated_by=$15, updated_at=$16
		WHERE his_id = $1 AND version_id = $17`,
		s.HISID, s.DocumentHISID, s.DocumentID, s.Code, s.Name,
		s.ReqRoomID, s.ReqDeptID, s.ReqUserID, s.MedicineTypeID,
		s.StockCode, s.StockName, s.DocumentDate,
		s.VersionID, s.IsActive, s.UpdatedBy, s.UpdatedAt,
		s.VersionID-1)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("export slip %d at version %d: %w", s.HISID, s.VersionID-1, ErrConflict)
	}
	return nil
}

func (r *exportSlipRepoPG) GetByHISID(ctx context.Context, hisID int64) (*ExportSlip, error) {
	s, err := scanExportSlip(r.conn(ctx).QueryRow(ctx,
		`SELECT `+exportSlipCols+` FROM export_slip WHERE his_id = $1`, hisID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("export slip %d: %w", hisID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *exportSlipRepoPG) ListByHISIDs(ctx context.Context, hisIDs []int64) ([]*ExportSlip, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+exportSlipCols+` FROM export_slip WHERE his_id = ANY($1) ORDER BY his_id`, hisIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSlips(rows)
}

func (r *exportSlipRepoPG) ListByDocumentHISID(ctx context.Context, docHISID int64) ([]*ExportSlip, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+exportSlipCols+` FROM export_slip WHERE document_his_id = $1 ORDER BY his_id`, docHISID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSlips(rows)
}

func collectSlips(rows pgx.Rows) ([]*ExportSlip, error) {
	var items []*ExportSlip
	for rows.Next() {
		s, err := scanExportSlip(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// ---- MedicineLine Repo ----

type medicineLineRepoPG struct{ pool *pgxpool.Pool }

func NewMedicineLineRepoPG(pool *pgxpool.Pool) MedicineLineRepository {
	return &medicineLineRepoPG{pool: pool}
}

func (r *medicineLineRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const medicineLineCols = `id, his_id, slip_his_id, slip_id,
	medicine_id, medicine_code, medicine_name, amount,
	req_room_id, req_department_id, req_user_id, medicine_type_id,
	stock_code, stock_name, document_his_id,
	export_amount, exported_by, exported_at,
	actual_export_amount, actual_exported_by, actual_exported_at,
	version_id, is_active, created_by, updated_by, created_at, updated_at`

func scanMedicineLine(row pgx.Row) (*MedicineLine, error) {
	var m MedicineLine
	err := row.Scan(&m.ID, &m.HISID, &m.SlipHISID, &m.SlipID,
		&m.MedicineID, &m.MedicineCode, &m.MedicineName, &m.Amount,
		&m.ReqRoomID, &m.ReqDeptID, &m.ReqUserID, &m.MedicineTypeID,
		&m.StockCode, &m.StockName, &m.DocumentHISID,
		&m.ExportAmount, &m.ExportedBy, &m.ExportedAt,
		&m.ActualExportAmount, &m.ActualExportedBy, &m.ActualExportedAt,
		&m.VersionID, &m.IsActive, &m.CreatedBy, &m.UpdatedBy, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *medicineLineRepoPG) Create(ctx context.Context, m *MedicineLine) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medicine_line (id, his_id, slip_his_id, slip_id,
			medicine_id, medicine_code, medicine_name, amount,
			req_room_id, req_department_id, req_user_id, medicine_type_id,
			stock_code, stock_name, document_his_id,
			export_amount, exported_by, exported_at,
			actual_export_amount, actual_exported_by, actual_exported_at,
			version_id, is_active, created_by, updated_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,
			$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)`,
		m.ID, m.HISID, m.SlipHISID, m.SlipID,
		m.MedicineID, m.MedicineCode, m.MedicineName, m.Amount,
		m.ReqRoomID, m.ReqDeptID, m.ReqUserID, m.MedicineTypeID,
		m.StockCode, m.StockName, m.DocumentHISID,
		m.ExportAmount, m.ExportedBy, m.ExportedAt,
		m.ActualExportAmount, m.ActualExportedBy, m.ActualExportedAt,
		m.VersionID, m.IsActive, m.CreatedBy, m.UpdatedBy, m.CreatedAt, m.UpdatedAt)
	return err
}

// Update rewrites the sync-owned columns. The export state pairs are
// excluded: only the conditional Mark* updates may touch them.
func (r *medicineLineRepoPG) Update(ctx context.Context, m *MedicineLine) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medicine_line SET slip_his_id=$2, slip_id=$3,
			medicine_id=$4, medicine_code=$5, medicine_name=$6, amount=$7,
			req_room_id=$8, req_department_id=$9, req_user_id=$10, medicine_type_id=$11,
			stock_code=$12, stock_name=$13, document_his_id=$14,
			version_id=$15, is_active=$16, updated_by=$17, updated_at=$18
		WHERE his_id = $1 AND version_id = $19`,
		m.HISID, m.SlipHISID, m.SlipID,
		m.MedicineID, m.MedicineCode, m.MedicineName, m.Amount,
		m.ReqRoomID, m.ReqDeptID, m.ReqUserID, m.MedicineTypeID,
		m.StockCode, m.StockName, m.DocumentHISID,
		m.VersionID, m.IsActive, m.UpdatedBy, m.UpdatedAt,
		m.VersionID-1)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("medicine line %d at version %d: %w", m.HISID, m.VersionID-1, ErrConflict)
	}
	return nil
}

func (r *medicineLineRepoPG) GetByHISID(ctx context.Context, hisID int64) (*MedicineLine, error) {
	m, err := scanMedicineLine(r.conn(ctx).QueryRow(ctx,
		`SELECT `+medicineLineCols+` FROM medicine_line WHERE his_id = $1`, hisID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("medicine line %d: %w", hisID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *medicineLineRepoPG) ListByHISIDs(ctx context.Context, hisIDs []int64) ([]*MedicineLine, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+medicineLineCols+` FROM medicine_line WHERE his_id = ANY($1) ORDER BY his_id`, hisIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLines(rows)
}

func (r *medicineLineRepoPG) ListBySlipHISIDs(ctx context.Context, slipHISIDs []int64) ([]*MedicineLine, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+medicineLineCols+` FROM medicine_line WHERE slip_his_id = ANY($1) ORDER BY his_id`, slipHISIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLines(rows)
}

func collectLines(rows pgx.Rows) ([]*MedicineLine, error) {
	var items []*MedicineLine
	for rows.Next() {
		m, err := scanMedicineLine(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// MarkExported copies each row's own on-hand amount into export_amount. The
// WHERE clause restricts the update to rows still unexported, so two racing
// transitions get at most one winner per row.
func (r *medicineLineRepoPG) MarkExported(ctx context.Context, hisIDs []int64, actor string, at *time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medicine_line
		SET export_amount=amount, exported_by=$2, exported_at=$3,
			version_id=version_id+1, updated_by=$2, updated_at=NOW()
		WHERE his_id = ANY($1) AND exported_by IS NULL AND exported_at IS NULL`,
		hisIDs, actor, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *medicineLineRepoPG) MarkActualExported(ctx context.Context, hisIDs []int64, actor string, at *time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medicine_line
		SET actual_export_amount=amount, actual_exported_by=$2, actual_exported_at=$3,
			version_id=version_id+1, updated_by=$2, updated_at=NOW()
		WHERE his_id = ANY($1)
			AND actual_exported_by IS NULL AND actual_exported_at IS NULL
			AND (exported_by IS NOT NULL OR exported_at IS NOT NULL)`,
		hisIDs, actor, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
