// Package domain defines the vehicle-stock record schema, the aggregation
// payload, and the error taxonomy shared by the sync pipeline. It acts as
// the validation gate for everything decoded off the wire.
package domain

import (
	"encoding/json"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// StockItem is one vehicle record from the catalog. The integer ID is the
// reconciliation key; every other field is a scalar copied verbatim from
// the API. Optional fields are pointers so that absence survives the trip
// into the store as null rather than a zero value.
type StockItem struct {
	ID                          int      `json:"id" bson:"id"`
	Name                        string   `json:"name" bson:"name"`
	Brand                       string   `json:"brand" bson:"brand"`
	Model                       string   `json:"model" bson:"model"`
	CategoryName                *string  `json:"categoryName" bson:"categoryName"`
	ColorName                   *string  `json:"colorName" bson:"colorName"`
	Weight                      *int     `json:"weight" bson:"weight"`
	Height                      *int     `json:"height" bson:"height"`
	Width                       *int     `json:"width" bson:"width"`
	NumberOfDoors               *int     `json:"numberOfDoors" bson:"numberOfDoors"`
	VIN                         string   `json:"vehicleIdentificationNumber" bson:"vehicleIdentificationNumber"`
	DateVehicleFirstRegistered  string   `json:"dateVehicleFirstRegistered" bson:"dateVehicleFirstRegistered"`
	FuelType                    *string  `json:"fuelType" bson:"fuelType"`
	MileageFromOdometer         *int     `json:"mileageFromOdometer" bson:"mileageFromOdometer"`
	VehicleSeatingCapacity      *int     `json:"vehicleSeatingCapacity" bson:"vehicleSeatingCapacity"`
	VehicleTransmission         *string  `json:"vehicleTransmission" bson:"vehicleTransmission"`
	EmissionsCO2                *int     `json:"emissionsCO2" bson:"emissionsCO2"`
	NumberPlate                 *string  `json:"numberPlate" bson:"numberPlate"`
	VehiclePriceIncTax          *float64 `json:"vehiclePriceIncTax" bson:"vehiclePriceIncTax"`
	VehiclePriceExcTax          *float64 `json:"vehiclePriceExcTax" bson:"vehiclePriceExcTax"`
	VehicleFamily               *string  `json:"vehicleFamily" bson:"vehicleFamily"`
	FinishQuality               *string  `json:"finishQuality" bson:"finishQuality"`
	Version                     *string  `json:"version" bson:"version"`
	VehicleEnginePowerTax       *int     `json:"vehicleEnginePowerTax" bson:"vehicleEnginePowerTax"`
	VehicleEnginePowerHP        *int     `json:"vehicleEnginePowerHp" bson:"vehicleEnginePowerHp"`
	WarrantyName                *string  `json:"warrantyName" bson:"warrantyName"`
	RRGType                     *string  `json:"rrgType" bson:"rrgType"`
	LocationName                *string  `json:"locationName" bson:"locationName"`
	DateOfEntryIntoStock        *string  `json:"dateOfEntryIntoStock" bson:"dateOfEntryIntoStock"`
	InternalType                *string  `json:"internalType" bson:"internalType"`
	Type                        *string  `json:"type" bson:"type"`
	OnlinePurchaseCompliant     *bool    `json:"onlinePurchaseCompliant" bson:"onlinePurchaseCompliant"`
	AvailabilityStatus          *string  `json:"availabilityStatus" bson:"availabilityStatus"`
	VCDAvailable                *bool    `json:"vcdAvailable" bson:"vcdAvailable"`
	Location                    *string  `json:"location" bson:"location"`
}

// KeyCount is one term-aggregation bucket. Value carries the hex color code
// on color buckets and is null elsewhere.
type KeyCount struct {
	Key   BucketKey `json:"key" bson:"key"`
	Count int       `json:"count" bson:"count"`
	Value *string   `json:"value" bson:"value"`
}

// BucketKey is a term-bucket key. The API serves it as either a JSON
// string or a number; both forms are kept and re-marshaled as received.
type BucketKey struct {
	Value   string
	Numeric bool
}

func (k *BucketKey) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		k.Value, k.Numeric = s, false
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	k.Value, k.Numeric = n.String(), true
	return nil
}

func (k BucketKey) MarshalJSON() ([]byte, error) {
	if k.Numeric {
		return []byte(k.Value), nil
	}
	return json.Marshal(k.Value)
}

// MarshalBSONValue keeps numeric keys numeric in the store.
func (k BucketKey) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if k.Numeric {
		if i, err := strconv.ParseInt(k.Value, 10, 64); err == nil {
			return bson.MarshalValue(i)
		}
		if f, err := strconv.ParseFloat(k.Value, 64); err == nil {
			return bson.MarshalValue(f)
		}
	}
	return bson.MarshalValue(k.Value)
}

// StatRange is an observed min/max pair. The API promises min <= max but
// that is not enforced here.
type StatRange struct {
	Min float64 `json:"min" bson:"min"`
	Max float64 `json:"max" bson:"max"`
}

// StatBlock is the fixed set of numeric ranges the API aggregates.
type StatBlock struct {
	Price          StatRange `json:"price" bson:"price"`
	Mileage        StatRange `json:"mileage" bson:"mileage"`
	HP             StatRange `json:"hp" bson:"hp"`
	MonthlyPayment StatRange `json:"monthlyPayment" bson:"monthlyPayment"`
	Year           StatRange `json:"year" bson:"year"`
	EmissionsCO2   StatRange `json:"emissionsCO2" bson:"emissionsCO2"`
}

// Aggregations is the filter/stat payload served alongside every page.
type Aggregations struct {
	Term map[string][]KeyCount `json:"term" bson:"term"`
	Stat StatBlock             `json:"stat" bson:"stat"`
}

// Snapshot is the aggregation document written under the fixed "latest"
// key. Timestamp is copied from the first fetched item's stock-entry date.
type Snapshot struct {
	Aggregations `bson:",inline"`
	Timestamp    *string `json:"timestamp" bson:"timestamp"`
}

// StockCollection is the full result of one fetch cycle. It lives only for
// the duration of a run and is never persisted as-is.
type StockCollection struct {
	TotalItems   int
	Items        []StockItem
	Aggregations *Aggregations
	Pages        int
}

// IDs returns the ids of the collection's items in fetch order.
func (c *StockCollection) IDs() []int {
	ids := make([]int, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.ID
	}
	return ids
}

// FirstEntryDate returns the first item's stock-entry date, the source of
// the snapshot timestamp. Nil when the collection is empty or the field is
// null on the first item.
func (c *StockCollection) FirstEntryDate() *string {
	if len(c.Items) == 0 {
		return nil
	}
	return c.Items[0].DateOfEntryIntoStock
}
