package mealsync

// Version is sent in the User-Agent of the REST client.
const Version = "0.3.0"
