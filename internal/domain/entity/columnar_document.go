package entity

import (
	"bytes"

	"github.com/edupgarcia/bulk-processing/pkg/utils"
)

type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricHumidity    Metric = "humidity"
	MetricPressure    Metric = "pressure"
)

// Metrics lists the output documents in upload order.
var Metrics = []Metric{MetricTemperature, MetricHumidity, MetricPressure}

func (m Metric) Title() string {
	switch m {
	case MetricTemperature:
		return "Temperature"
	case MetricHumidity:
		return "Humidity"
	case MetricPressure:
		return "Pressure"
	default:
		return string(m)
	}
}

// ColumnarDocument is a per-metric CSV document: one header row and one
// row per appended reading.
type ColumnarDocument struct {
	Metric Metric
	buf    bytes.Buffer
	rows   int
}

func NewColumnarDocument(m Metric) *ColumnarDocument {
	d := &ColumnarDocument{Metric: m}
	d.buf.WriteString(utils.QuotedCSVRow("Sensor ID", "Timestamp", m.Title()))
	return d
}

func (d *ColumnarDocument) Append(r SensorReading) {
	d.buf.WriteString(utils.QuotedCSVRow(string(r.ID), string(r.Timestamp), string(r.Metric(d.Metric))))
	d.rows++
}

// Rows returns the number of data rows, header excluded.
func (d *ColumnarDocument) Rows() int {
	return d.rows
}

func (d *ColumnarDocument) Bytes() []byte {
	return d.buf.Bytes()
}

// ObjectKey returns the destination key "<metric>/<path>.csv".
func (d *ColumnarDocument) ObjectKey(path string) string {
	return string(d.Metric) + "/" + path + ".csv"
}
