package routes

import "github.com/example/priority-ride/internal/models"

func loc(lat, lng float64, short, full string) models.Location {
	return models.Location{LatLng: models.LatLng{Lat: lat, Lng: lng}, GeocodedAddr: short, FullGeocodedAddr: full}
}

var builtin = []models.Route{
	{
		Name:        "i_house_to_cathey",
		Origin:      loc(41.7878692, -87.5908127, "I-House.", "I-House."),
		Destination: loc(41.7851539, -87.6011258, "Cathey Dining Commons.", "Cathey Dining Commons."),
	},
	{
		Name:        "both_out_of_bounds",
		Origin:      loc(41.773292, -87.584570, "", ""),
		Destination: loc(41.809724, -87.595388, "<short address>", "<full address>"),
	},
	{
		Name:        "notnamed_to_ihouse",
		Origin:      loc(41.788064, -87.601145, "NA", "NA"),
		Destination: loc(41.7878692, -87.5908127, "NA", "NA"),
	},
}
