package sam

// Entity is one registry record as returned by the API. Sections and fields
// the API may omit are pointers.
type Entity struct {
	Registration Registration `json:"entityRegistration"`
	Core         *CoreData    `json:"coreData,omitempty"`
}

// Registration is the entityRegistration section.
type Registration struct {
	UEI                        string  `json:"ueiSAM"`
	CAGECode                   *string `json:"cageCode,omitempty"`
	LegalBusinessName          string  `json:"legalBusinessName"`
	DBAName                    *string `json:"dbaName,omitempty"`
	RegistrationStatus         *string `json:"registrationStatus,omitempty"`
	RegistrationExpirationDate *string `json:"registrationExpirationDate,omitempty"`
}

// CoreData is the coreData section.
type CoreData struct {
	EntityInformation *EntityInformation `json:"entityInformation,omitempty"`
	PhysicalAddress   *Address           `json:"physicalAddress,omitempty"`
}

// EntityInformation holds general entity attributes.
type EntityInformation struct {
	EntityURL *string `json:"entityURL,omitempty"`
}

// Address is a postal address.
type Address struct {
	AddressLine1        *string `json:"addressLine1,omitempty"`
	City                *string `json:"city,omitempty"`
	StateOrProvinceCode *string `json:"stateOrProvinceCode,omitempty"`
	ZipCode             *string `json:"zipCode,omitempty"`
	CountryCode         *string `json:"countryCode,omitempty"`
}
