package export

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/lehigh-university-libraries/cardscan/internal/models"
)

// Row is the Parquet schema; empty fields are null
type Row struct {
	FullName           *string `parquet:"full_name,optional"`
	FirstName          *string `parquet:"first_name,optional"`
	LastName           *string `parquet:"last_name,optional"`
	Email              *string `parquet:"email,optional"`
	Phone              *string `parquet:"handphone_number,optional"`
	CompanyName        *string `parquet:"company_name,optional"`
	Position           *string `parquet:"position,optional"`
	Address            *string `parquet:"address,optional"`
	City               *string `parquet:"city,optional"`
	Country            *string `parquet:"country,optional"`
	Website            *string `parquet:"website,optional"`
	SocialMedia        *string `parquet:"social_media,optional"`
	CompanyDescription *string `parquet:"company_description,optional"`
	AdditionalEmail    *string `parquet:"additional_email,optional"`
	AdditionalPhone    *string `parquet:"additional_phone,optional"`
	AdditionalWebsite  *string `parquet:"additional_website,optional"`
	Services           *string `parquet:"services,optional"`
	Timestamp          *string `parquet:"timestamp,optional"`
	BackSideProcessed  *bool   `parquet:"back_side_processed,optional"`
	Source             string  `parquet:"source"`
	Error              *string `parquet:"error,optional"`
}

// fields maps column names to the row's string fields
func (r *Row) fields() map[string]**string {
	return map[string]**string{
		models.FullName:           &r.FullName,
		models.FirstName:          &r.FirstName,
		models.LastName:           &r.LastName,
		models.Email:              &r.Email,
		models.Phone:              &r.Phone,
		models.CompanyName:        &r.CompanyName,
		models.Position:           &r.Position,
		models.Address:            &r.Address,
		models.City:               &r.City,
		models.Country:            &r.Country,
		models.Website:            &r.Website,
		models.SocialMedia:        &r.SocialMedia,
		models.CompanyDescription: &r.CompanyDescription,
		models.AdditionalEmail:    &r.AdditionalEmail,
		models.AdditionalPhone:    &r.AdditionalPhone,
		models.AdditionalWebsite:  &r.AdditionalWebsite,
		models.Services:           &r.Services,
		models.Timestamp:          &r.Timestamp,
		ErrorColumn:               &r.Error,
	}
}

func toRow(rec Record) Row {
	row := Row{Source: rec.Source}
	for col, field := range row.fields() {
		if s, ok := rec.value(col).(string); ok {
			*field = &s
		}
	}
	if b, ok := rec.value(models.BackSideProcessed).(bool); ok {
		row.BackSideProcessed = &b
	}
	return row
}

func fromRow(row Row) Record {
	rec := Record{Source: row.Source, Fields: models.FieldMap{}}
	for col, field := range row.fields() {
		if *field == nil {
			continue
		}
		if col == ErrorColumn {
			rec.Error = **field
			continue
		}
		rec.Fields[col] = **field
	}
	if row.BackSideProcessed != nil {
		rec.Fields[models.BackSideProcessed] = *row.BackSideProcessed
	}
	return rec
}

// WriteParquet writes records as a single row group
func WriteParquet(w io.Writer, records []Record) error {
	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = toRow(rec)
	}

	pw := parquet.NewGenericWriter[Row](w)
	if _, err := pw.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// ReadParquet loads records written by WriteParquet
func ReadParquet(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}
	slog.Debug("Parquet file opened", "path", path, "num_rows", pf.NumRows())

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	var records []Record
	rows := make([]Row, 128)
	for {
		n, err := reader.Read(rows)
		for _, row := range rows[:n] {
			records = append(records, fromRow(row))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	return records, nil
}
