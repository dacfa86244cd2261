package config

var LoadConfigWithLookup = loadConfig

var DriverDSN = driverDSN
