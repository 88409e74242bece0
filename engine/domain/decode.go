package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// requiredItemFields must be present and non-null on every decoded item.
var requiredItemFields = []string{
	"id", "name", "brand", "model",
	"vehicleIdentificationNumber", "dateVehicleFirstRegistered",
}

// requiredStatRanges are the ranges every aggregation payload carries.
var requiredStatRanges = []string{
	"price", "mileage", "hp", "monthlyPayment", "year", "emissionsCO2",
}

// DecodeStockItem decodes one page member into a StockItem, checking that
// the required fields are present, non-null, and typed correctly. path
// locates the member for error reporting, e.g. "hydra:member[3]".
func DecodeStockItem(raw json.RawMessage, path string) (StockItem, error) {
	var item StockItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return StockItem{}, DecodeErrorAt(path, err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return StockItem{}, NewSchemaError(path, "expected an object")
	}
	for _, name := range requiredItemFields {
		if v, ok := fields[name]; !ok || isNull(v) {
			return StockItem{}, NewSchemaError(path+"."+name, "required field missing")
		}
	}
	return item, nil
}

// DecodeAggregations decodes the aggregation payload, checking that the
// term map, each bucket's key and count, the stat block, and the six
// named ranges are all present.
func DecodeAggregations(raw json.RawMessage, path string) (Aggregations, error) {
	var aggs Aggregations
	if err := json.Unmarshal(raw, &aggs); err != nil {
		return Aggregations{}, DecodeErrorAt(path, err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Aggregations{}, NewSchemaError(path, "expected an object")
	}
	for _, name := range []string{"term", "stat"} {
		if v, ok := fields[name]; !ok || isNull(v) {
			return Aggregations{}, NewSchemaError(path+"."+name, "required field missing")
		}
	}

	// A null bucket key or count would decode to a zero value without
	// complaint, so the buckets are walked raw.
	groups := make(map[string][]json.RawMessage)
	if err := json.Unmarshal(fields["term"], &groups); err != nil {
		return Aggregations{}, NewSchemaError(path+".term", "expected an object")
	}
	for name, buckets := range groups {
		for i, b := range buckets {
			bucket := make(map[string]json.RawMessage)
			if err := json.Unmarshal(b, &bucket); err != nil {
				return Aggregations{}, NewSchemaError(fmt.Sprintf("%s.term.%s[%d]", path, name, i), "expected an object")
			}
			for _, field := range []string{"key", "count"} {
				if v, ok := bucket[field]; !ok || isNull(v) {
					return Aggregations{}, NewSchemaError(fmt.Sprintf("%s.term.%s[%d].%s", path, name, i, field), "required field missing")
				}
			}
		}
	}

	stat := make(map[string]json.RawMessage)
	if err := json.Unmarshal(fields["stat"], &stat); err != nil {
		return Aggregations{}, NewSchemaError(path+".stat", "expected an object")
	}
	for _, name := range requiredStatRanges {
		if v, ok := stat[name]; !ok || isNull(v) {
			return Aggregations{}, NewSchemaError(path+".stat."+name, "required field missing")
		}
	}
	return aggs, nil
}

// DecodeErrorAt converts a json decoding failure into a SchemaError
// anchored at path. Type mismatches keep the field that failed.
func DecodeErrorAt(path string, err error) *SchemaError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		p := path
		if typeErr.Field != "" {
			p = path + "." + typeErr.Field
		}
		return NewSchemaError(p, fmt.Sprintf("cannot decode %s into %s", typeErr.Value, typeErr.Type))
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return NewSchemaError(path, "malformed JSON")
	}
	return NewSchemaError(path, err.Error())
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || string(bytes.TrimSpace(v)) == "null"
}
