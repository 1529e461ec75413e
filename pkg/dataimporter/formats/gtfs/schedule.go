package gtfs

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/ctdf"
	"github.com/travigo/disruptions/pkg/dataset"
	"github.com/travigo/disruptions/pkg/util"
)

const defaultNetwork = "default"

type Schedule struct {
	Agencies      []Agency
	Stops         []Stop
	Routes        []Route
	Trips         []Trip
	StopTimes     []StopTime
	Calendars     []Calendar
	CalendarDates []CalendarDate
}

func ReadScheduleFile(path string) (*Schedule, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	schedule := &Schedule{}
	if err := schedule.ParseFile(file); err != nil {
		return nil, err
	}
	return schedule, nil
}

func (gtfs *Schedule) ParseFile(reader io.Reader) error {
	// Allow us to ignore those naughty records that have missing columns
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.FieldsPerRecord = -1
		return r
	})

	fileMap := map[string]interface{}{
		"agency.txt":         &gtfs.Agencies,
		"stops.txt":          &gtfs.Stops,
		"routes.txt":         &gtfs.Routes,
		"trips.txt":          &gtfs.Trips,
		"stop_times.txt":     &gtfs.StopTimes,
		"calendar.txt":       &gtfs.Calendars,
		"calendar_dates.txt": &gtfs.CalendarDates,
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	archive, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return err
	}

	for _, zipFile := range archive.File {
		destination, exists := fileMap[zipFile.Name]
		if !exists {
			log.Debug().Str("file", zipFile.Name).Msg("Ignoring gtfs file")
			continue
		}

		log.Info().Str("file", zipFile.Name).Msg("Loading file")

		if err := unmarshalZipFile(zipFile, destination); err != nil {
			log.Error().Str("file", zipFile.Name).Err(err).Msg("Failed to parse csv file")
			return err
		}
	}

	return nil
}

func unmarshalZipFile(zipFile *zip.File, destination interface{}) error {
	fileReader, err := zipFile.Open()
	if err != nil {
		return err
	}
	defer fileReader.Close()

	return gocsv.Unmarshal(fileReader, destination)
}

// Location is the timezone of the first agency, UTC when unset
func (gtfs *Schedule) Location() (*time.Location, error) {
	if len(gtfs.Agencies) == 0 || gtfs.Agencies[0].Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(gtfs.Agencies[0].Timezone)
}

// Beginning is the earliest service date of the schedule
func (gtfs *Schedule) Beginning() (time.Time, error) {
	var beginning time.Time

	for _, calendar := range gtfs.Calendars {
		start, err := util.ParseGTFSDate(calendar.Start)
		if err != nil {
			return beginning, err
		}
		if beginning.IsZero() || start.Before(beginning) {
			beginning = start
		}
	}
	for _, calendarDate := range gtfs.CalendarDates {
		if calendarDate.ExceptionType != CalendarDateAdded {
			continue
		}
		date, err := util.ParseGTFSDate(calendarDate.Date)
		if err != nil {
			return beginning, err
		}
		if beginning.IsZero() || date.Before(beginning) {
			beginning = date
		}
	}

	if beginning.IsZero() {
		return beginning, fmt.Errorf("schedule has no service dates")
	}
	return beginning, nil
}

// Build loads the schedule into a new dataset covering days service days from beginning.
// A zero beginning starts on the earliest service date.
func (gtfs *Schedule) Build(beginning time.Time, days int) (*dataset.Dataset, error) {
	location, err := gtfs.Location()
	if err != nil {
		return nil, err
	}
	if beginning.IsZero() {
		beginning, err = gtfs.Beginning()
		if err != nil {
			return nil, err
		}
	}

	ds := dataset.New(beginning, days, location)

	for _, agency := range gtfs.Agencies {
		ds.AddNetwork(agencyURI(agency.ID), agency.Name)
	}

	routes := map[string]*Route{}
	for i := range gtfs.Routes {
		route := &gtfs.Routes[i]
		routes[route.ID] = route

		name := route.LongName
		if name == "" {
			name = route.ShortName
		}
		line := ds.AddLine(agencyURI(route.AgencyID), route.ID, route.ShortName, name)
		line.Colour = route.Colour
	}

	for _, stop := range gtfs.Stops {
		if stop.IsStation() {
			ds.AddStopArea(stop.ID, stop.Name)
		}
	}
	for _, stop := range gtfs.Stops {
		if stop.IsStation() || (stop.Type != "" && stop.Type != "0") {
			continue
		}
		stopArea := stop.Parent
		if stopArea == "" {
			stopArea = stop.ID
			ds.AddStopArea(stopArea, stop.Name)
		}
		ds.AddStopPoint(stopArea, stop.ID, stop.Name)
	}

	services, err := gtfs.serviceDays(ds.Calendar, days)
	if err != nil {
		return nil, err
	}

	stopTimes := map[string][]StopTime{}
	for _, stopTime := range gtfs.StopTimes {
		stopTimes[stopTime.TripID] = append(stopTimes[stopTime.TripID], stopTime)
	}

	imported := 0
	for _, trip := range gtfs.Trips {
		route, exists := routes[trip.RouteID]
		if !exists {
			log.Warn().Str("trip", trip.ID).Str("route", trip.RouteID).Msg("Trip references unknown route")
			continue
		}

		routeURI := directionRouteURI(route.ID, trip.DirectionID)
		if _, err := ds.AddRoute(route.ID, routeURI, trip.Headsign); err != nil {
			return nil, err
		}

		spec, err := tripSpec(trip, routeURI, services[trip.ServiceID], stopTimes[trip.ID])
		if err != nil {
			log.Warn().Err(err).Str("trip", trip.ID).Msg("Skipping trip")
			continue
		}

		if _, err := ds.AddTrip(spec); err != nil {
			log.Warn().Err(err).Str("trip", trip.ID).Msg("Skipping trip")
			continue
		}
		imported++
	}

	log.Info().
		Int("networks", len(ds.Networks)).
		Int("lines", len(ds.Lines)).
		Int("routes", len(ds.Routes)).
		Int("stoppoints", len(ds.StopPoints)).
		Int("trips", imported).
		Time("beginning", ds.Calendar.Beginning).
		Int("days", days).
		Msg("Loaded GTFS schedule")

	return ds, nil
}

// serviceDays resolves every service id to the days it runs on
func (gtfs *Schedule) serviceDays(calendar ctdf.Calendar, days int) (map[string]ctdf.DaySet, error) {
	services := map[string]ctdf.DaySet{}

	for _, gtfsCalendar := range gtfs.Calendars {
		start, err := util.ParseGTFSDate(gtfsCalendar.Start)
		if err != nil {
			return nil, err
		}
		end, err := util.ParseGTFSDate(gtfsCalendar.End)
		if err != nil {
			return nil, err
		}

		var serviceDays ctdf.DaySet
		for day := ctdf.ServiceDay(0); int(day) < days; day++ {
			date := calendar.Midnight(day)
			current := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
			if current.Before(start) || current.After(end) {
				continue
			}
			if gtfsCalendar.RunsOn(date.Weekday()) {
				serviceDays = serviceDays.With(day)
			}
		}
		services[gtfsCalendar.ServiceID] = serviceDays
	}

	for _, calendarDate := range gtfs.CalendarDates {
		date, err := util.ParseGTFSDate(calendarDate.Date)
		if err != nil {
			return nil, err
		}
		day := calendar.DayOf(time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, calendar.Location))
		if day < 0 || int(day) >= days {
			continue
		}

		switch calendarDate.ExceptionType {
		case CalendarDateAdded:
			services[calendarDate.ServiceID] = services[calendarDate.ServiceID].With(day)
		case CalendarDateRemoved:
			services[calendarDate.ServiceID] = services[calendarDate.ServiceID].Without(day)
		}
	}

	return services, nil
}

func tripSpec(trip Trip, routeURI string, days ctdf.DaySet, stopTimes []StopTime) (dataset.TripSpec, error) {
	sort.SliceStable(stopTimes, func(i, j int) bool {
		return stopTimes[i].StopSequence < stopTimes[j].StopSequence
	})

	spec := dataset.TripSpec{
		URI:   trip.ID,
		Route: routeURI,
		Days:  days,
	}

	for _, stopTime := range stopTimes {
		arrival, err := ctdf.ParseTimeOfDay(stopTime.ArrivalTime)
		if err != nil {
			return spec, err
		}
		departure, err := ctdf.ParseTimeOfDay(stopTime.DepartureTime)
		if err != nil {
			return spec, err
		}

		spec.StopTimes = append(spec.StopTimes, dataset.StopTimeSpec{
			StopPoint:      stopTime.StopID,
			Arrival:        arrival,
			Departure:      departure,
			PickupAllowed:  stopTime.PickupType != 1,
			DropoffAllowed: stopTime.DropOffType != 1,
		})
	}

	if len(spec.StopTimes) == 0 {
		return spec, fmt.Errorf("trip has no stop times")
	}

	return spec, nil
}

func agencyURI(agencyID string) string {
	if agencyID == "" {
		return defaultNetwork
	}
	return agencyID
}

func directionRouteURI(routeID string, directionID string) string {
	if directionID == "" {
		directionID = "0"
	}
	return fmt.Sprintf("%s:%s", routeID, directionID)
}
